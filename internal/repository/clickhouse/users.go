package clickhouse

import (
	"context"
	"fmt"
	"time"

	"jobtracker/internal/errors"
	"jobtracker/internal/models"
)

type userRow struct {
	ID           string    `ch:"id"`
	Email        string    `ch:"email"`
	PasswordHash string    `ch:"password_hash"`
	FullName     string    `ch:"full_name"`
	CreatedAt    time.Time `ch:"created_at"`
	UpdatedAt    time.Time `ch:"updated_at"`
}

func (r userRow) user() *models.User {
	return &models.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		FullName:     r.FullName,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const userColumns = `id, email, password_hash, full_name, created_at, updated_at`

// CreateUser registers an account. Emails are unique.
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	ctx, span := s.tracer.Start(ctx, "CreateUser")
	defer span.End()

	u.Email = models.NormalizeEmail(u.Email)
	if _, err := s.UserByEmail(ctx, u.Email); err == nil {
		return errors.Conflict("email already registered", nil)
	} else if !errors.Is(err, errors.ErrTypeNotFound) {
		return err
	}

	if err := s.conn.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.CreatedAt, u.UpdatedAt,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "email = ?", models.NormalizeEmail(email))
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Store) findUser(ctx context.Context, where string, arg string) (*models.User, error) {
	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users FINAL WHERE ` + where + ` LIMIT 1`
	if err := s.conn.Select(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("user not found", nil)
	}
	return rows[0].user(), nil
}
