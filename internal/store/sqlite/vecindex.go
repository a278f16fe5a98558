package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	docVectorTable = "document_embeddings"
	msgVectorTable = "message_embeddings"
)

// VectorIndex is the companion store mapping row ids to embeddings for one
// entity kind. Writes only happen inside the caller's transaction, paired
// with the relational write that produced the row id; callers outside this
// package reach it only through the knowledge base.
type VectorIndex struct {
	store *Store
	table string
}

// DocumentIndex returns the vector index over document rows.
func (s *Store) DocumentIndex() *VectorIndex {
	return &VectorIndex{store: s, table: docVectorTable}
}

// MessageIndex returns the vector index over message rows.
func (s *Store) MessageIndex() *VectorIndex {
	return &VectorIndex{store: s, table: msgVectorTable}
}

// Match is one KNN hit: the owning row id and its distance from the query.
type Match struct {
	RowID    int64
	Distance float64
}

// InsertTx stores one or more encoded vectors for rowID within tx. No
// transaction of its own: the insert must commit or roll back together with
// the relational row it references.
func (ix *VectorIndex) InsertTx(tx Execer, rowID int64, vectors [][]byte) error {
	for _, blob := range vectors {
		_, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s (embedding, row_id) VALUES (?, ?)", ix.table),
			blob, rowID,
		)
		if err != nil {
			return wrapErr("insert vector", err)
		}
	}
	return nil
}

// DeleteTx removes all vectors owned by rowID within tx. Used when a
// document is replaced.
func (ix *VectorIndex) DeleteTx(tx Execer, rowID int64) error {
	_, err := tx.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE row_id = ?", ix.table),
		rowID,
	)
	if err != nil {
		return wrapErr("delete vectors", err)
	}
	return nil
}

// KNN returns up to k row ids by ascending distance from the encoded query
// vector. An empty index, or k larger than the number of stored vectors,
// returns what exists. Distance and tie order are whatever sqlite-vec
// defines; this method does not re-rank.
func (ix *VectorIndex) KNN(ctx context.Context, query []byte, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := ix.store.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT row_id, distance
		FROM %s
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, ix.table), query, k)
	if err != nil {
		return nil, wrapErr("knn query", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.RowID, &m.Distance); err != nil {
			return nil, wrapErr("knn scan", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Execer is the subset of *sql.Tx the vector index needs, so inserts can only
// happen inside an already-open transaction.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
