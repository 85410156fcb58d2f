package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements user persistence on PostgreSQL.
type Repository struct {
	db DB
}

// New constructs a Repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

var _ repository.UserRepository = (*Repository)(nil)

const (
	pgerrUniqueViolation  = "23505"
	pgerrCheckViolation   = "23514"
	pgerrNotNullViolation = "23502"
	pgerrInvalidText      = "22P02"
)

const userColumns = `id, email, salt, hashed_password, is_active, is_verified, is_superuser,
	openai_api_key, tavily_api_key, firecrawl_api_key, created_at, updated_at`

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Salt,
		user.PasswordHash,
		user.IsActive,
		user.IsVerified,
		user.IsSuperuser,
		user.Keys.OpenAI,
		user.Keys.Tavily,
		user.Keys.Firecrawl,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return mapWriteError(err)
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return lookup(r.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return lookup(r.db.QueryRow(ctx, query, id))
}

// UpdateUser overwrites the mutable columns of an existing user.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET
		email = $2,
		hashed_password = $3,
		is_active = $4,
		is_verified = $5,
		is_superuser = $6,
		openai_api_key = $7,
		tavily_api_key = $8,
		firecrawl_api_key = $9,
		updated_at = $10
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.IsVerified,
		user.IsSuperuser,
		user.Keys.OpenAI,
		user.Keys.Tavily,
		user.Keys.Firecrawl,
		user.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListUsers returns users ordered by creation time, optionally filtered by activation state.
func (r *Repository) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	limit := filter.PageSize()
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Active != nil {
		const query = `SELECT ` + userColumns + ` FROM users WHERE is_active = $1
			ORDER BY created_at ASC LIMIT $2 OFFSET $3`
		rows, err = r.db.Query(ctx, query, *filter.Active, limit, offset)
	} else {
		const query = `SELECT ` + userColumns + ` FROM users
			ORDER BY created_at ASC LIMIT $1 OFFSET $2`
		rows, err = r.db.Query(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// lookup scans a single-row read. A malformed key can match nothing, so
// invalid text representation is reported as not found.
func lookup(row pgx.Row) (*domain.User, error) {
	user, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrInvalidText {
		return nil, repository.ErrNotFound
	}
	return user, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Salt,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsVerified,
		&u.IsSuperuser,
		&u.Keys.OpenAI,
		&u.Keys.Tavily,
		&u.Keys.Firecrawl,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrUniqueViolation:
			return repository.ErrConflict
		case pgerrCheckViolation, pgerrInvalidText, pgerrNotNullViolation:
			return repository.ErrInvalidArgument
		}
	}
	return err
}
