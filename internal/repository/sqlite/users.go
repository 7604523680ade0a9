package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"jobtracker/internal/errors"
	"jobtracker/internal/models"
)

const userColumns = `id, email, password_hash, full_name, created_at, updated_at`

// CreateUser registers an account. Emails are unique.
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	ctx, span := s.tracer.Start(ctx, "CreateUser")
	defer span.End()

	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, models.NormalizeEmail(u.Email), u.PasswordHash, u.FullName,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err) {
			return errors.Conflict("email already registered", err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, `email = ?`, models.NormalizeEmail(email))
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, `id = ?`, id)
}

func (s *Store) findUser(ctx context.Context, where, arg string) (*models.User, error) {
	var (
		u                    models.User
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &createdAt, &updatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("user not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}
