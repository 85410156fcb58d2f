package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestNearestDocumentsOrdersByDistance(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := NewDocumentStore(db)
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, content, created_at FROM documents ORDER BY embedding <-> $1::vector LIMIT $2`)).
		WithArgs("[0.1,0.2]", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "created_at"}).
			AddRow(int64(7), "closest", now).
			AddRow(int64(3), "next", now))

	docs, err := store.NearestDocuments(context.Background(), []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(7), docs[0].ID)
	assert.Equal(t, "next", docs[1].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestDocumentsDefaultsK(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := NewDocumentStore(db)

	mock.ExpectQuery(`FROM documents`).
		WithArgs("[1]", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "created_at"}))

	docs, err := store.NearestDocuments(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNearestDocumentsRejectsEmptyEmbedding(t *testing.T) {
	db, _ := newSQLMockDB(t)
	_, err := NewDocumentStore(db).NearestDocuments(context.Background(), nil, 3)
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
}

func TestInsertDocumentsCommits(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := NewDocumentStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("alpha", "[1,2]").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("beta", "[3,4]").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	ids, err := store.InsertDocuments(context.Background(), []domain.Document{
		{Content: "alpha", Embedding: []float32{1, 2}},
		{Content: "beta", Embedding: []float32{3, 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentsRollsBackOnFailure(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := NewDocumentStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("alpha", "[1]").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("beta", "[2]").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.InsertDocuments(context.Background(), []domain.Document{
		{Content: "alpha", Embedding: []float32{1}},
		{Content: "beta", Embedding: []float32{2}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentsRejectsBlankContent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	store := NewDocumentStore(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := store.InsertDocuments(context.Background(), []domain.Document{{Content: "  ", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
	require.NoError(t, mock.ExpectationsWereMet())
}
