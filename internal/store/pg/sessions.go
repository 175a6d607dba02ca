package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"formgate.dev/internal/auth"
)

// Sessions persists the server-side records backing token revocation.
type Sessions struct {
	db *sql.DB
}

var _ auth.SessionStore = (*Sessions)(nil)

func (s *Sessions) Create(ctx context.Context, userID int64, sessionID string, expiresAt time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, expires_at)
		values ($1, $2, $3)
	`, sessionID, userID, expiresAt.UTC())
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// Validate compares expires_at in Go rather than in SQL so clock handling
// stays in one place.
func (s *Sessions) Validate(ctx context.Context, sessionID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		select expires_at from sessions where id = $1
	`, sessionID).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return expiresAt.After(time.Now()), nil
}

func (s *Sessions) Delete(ctx context.Context, sessionID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, sessionID)
	return err
}

func (s *Sessions) DeleteForUser(ctx context.Context, userID int64) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `delete from sessions where user_id = $1`, userID)
	return err
}

func (s *Sessions) CleanupExpired(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
