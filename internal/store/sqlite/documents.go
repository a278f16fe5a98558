package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spetr/mcp-knowledge/pkg/types"
)

// UpsertDocumentTx inserts or replaces the document under docID inside a
// caller-owned transaction and returns its row id. The knowledge base pairs
// this with replacing the document's vector rows in the same transaction.
func (s *Store) UpsertDocumentTx(tx *sql.Tx, docID, content string) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO documents (doc_id, content)
		VALUES (?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			content = excluded.content
		RETURNING id
	`, docID, content).Scan(&id)
	if err != nil {
		return 0, wrapErr("upsert document", err)
	}
	return id, nil
}

// GetDocument returns the document with the given caller-supplied id, or nil
// if absent.
func (s *Store) GetDocument(ctx context.Context, docID string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_id, content FROM documents WHERE doc_id = ?
	`, docID)
	return scanDocument(row)
}

// GetDocumentByRowID returns the document with the given row id, or nil if
// absent. Used to join KNN hits back to their content.
func (s *Store) GetDocumentByRowID(ctx context.Context, id int64) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_id, content FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// GetDocumentEmbeddings returns the stored vector blobs for a document, in
// insertion order. Returns nil for an unknown document.
func (s *Store) GetDocumentEmbeddings(ctx context.Context, docID string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.embedding
		FROM `+docVectorTable+` e
		JOIN documents d ON e.row_id = d.id
		WHERE d.doc_id = ?
		ORDER BY e.rowid
	`, docID)
	if err != nil {
		return nil, wrapErr("get document embeddings", err)
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, wrapErr("get document embeddings", err)
		}
		blobs = append(blobs, b)
	}
	return blobs, rows.Err()
}

func scanDocument(row *sql.Row) (*types.Document, error) {
	var d types.Document
	err := row.Scan(&d.ID, &d.DocID, &d.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get document", err)
	}
	return &d, nil
}
