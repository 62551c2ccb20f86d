package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

const uniqueViolation = "23505"

const userColumns = `id, username, first_name, last_name, password_hash, created_at`

// UserRepository is the identity store.
type UserRepository interface {
	Create(ctx context.Context, username, firstName, lastName, passwordHash string) (models.User, error)
	GetByID(ctx context.Context, id int) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	Search(ctx context.Context, query string, excludeID int, limit int) ([]models.User, error)
	Delete(ctx context.Context, id int) error
}

// UserRepo is a sqlx-backed UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a user. The password must already be hashed.
func (r *UserRepo) Create(ctx context.Context, username, firstName, lastName, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (username, first_name, last_name, password_hash) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		username, firstName, lastName, passwordHash).StructScan(&user)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, err
	}
	return user, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Search does a case-insensitive substring match on username, first and last name.
func (r *UserRepo) Search(ctx context.Context, query string, excludeID int, limit int) ([]models.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users
        WHERE id <> $1
        AND (username ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2)
        ORDER BY username ASC
        LIMIT $3`, excludeID, pattern, limit)
	return users, err
}

// Delete removes the user row. Messages must be cleaned up first.
func (r *UserRepo) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
