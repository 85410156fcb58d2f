package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
)

// DocumentStore persists retrieval passages in a pgvector column. It runs on
// database/sql so batches can share one transaction.
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore constructs a DocumentStore. Open db with the "pgx" driver.
func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

var _ repository.DocumentRepository = (*DocumentStore)(nil)

// InsertDocuments stores docs atomically and returns their ids in order.
func (s *DocumentStore) InsertDocuments(ctx context.Context, docs []domain.Document) ([]int64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	const query = `INSERT INTO documents (content, embedding) VALUES ($1, $2::vector) RETURNING id`
	ids := make([]int64, 0, len(docs))
	err := WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		for i, doc := range docs {
			if strings.TrimSpace(doc.Content) == "" || len(doc.Embedding) == 0 {
				return fmt.Errorf("document %d: %w", i, repository.ErrInvalidArgument)
			}
			var id int64
			if err := tx.QueryRowContext(ctx, query, doc.Content, vectorLiteral(doc.Embedding)).Scan(&id); err != nil {
				return fmt.Errorf("insert document %d: %w", i, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// NearestDocuments returns up to k documents ordered by L2 distance to embedding.
func (s *DocumentStore) NearestDocuments(ctx context.Context, embedding []float32, k int) ([]domain.Document, error) {
	if len(embedding) == 0 {
		return nil, repository.ErrInvalidArgument
	}
	if k <= 0 {
		k = 5
	}
	const query = `SELECT id, content, created_at FROM documents ORDER BY embedding <-> $1::vector LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, vectorLiteral(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, k)
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// vectorLiteral renders a pgvector text literal such as [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
