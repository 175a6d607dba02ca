package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"formgate.dev/internal/auth"
)

// Users persists admin accounts.
type Users struct {
	db *sql.DB
}

var _ auth.UserStore = (*Users)(nil)

const adminUserColumns = `id, email, name, password_hash, role, tenant_id, notify_forms, is_active, created_at, last_login`

func scanAdminUser(row interface{ Scan(...any) error }) (auth.AdminUser, error) {
	var (
		u         auth.AdminUser
		tenant    sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &tenant, &u.NotifyForms, &u.IsActive, &u.CreatedAt, &lastLogin)
	if err != nil {
		return auth.AdminUser{}, err
	}
	if tenant.Valid {
		u.TenantID = &tenant.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (s *Users) Create(ctx context.Context, u auth.AdminUser) (auth.AdminUser, error) {
	if s.db == nil {
		return auth.AdminUser{}, errors.New("database connection unavailable")
	}
	var tenant sql.NullString
	if u.TenantID != nil {
		tenant = sql.NullString{String: *u.TenantID, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		insert into admin_users (email, name, password_hash, role, tenant_id, notify_forms, is_active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+adminUserColumns+`
	`, u.Email, u.Name, u.PasswordHash, u.Role, tenant, u.NotifyForms, u.IsActive)
	created, err := scanAdminUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.AdminUser{}, auth.ErrConflict
		}
		return auth.AdminUser{}, err
	}
	return created, nil
}

func (s *Users) GetByID(ctx context.Context, id int64) (auth.AdminUser, error) {
	if s.db == nil {
		return auth.AdminUser{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+adminUserColumns+`
		from admin_users
		where id = $1
	`, id)
	u, err := scanAdminUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AdminUser{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.AdminUser{}, err
	}
	return u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (auth.AdminUser, error) {
	if s.db == nil {
		return auth.AdminUser{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+adminUserColumns+`
		from admin_users
		where lower(email) = lower($1)
	`, email)
	u, err := scanAdminUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AdminUser{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.AdminUser{}, err
	}
	return u, nil
}

func (s *Users) List(ctx context.Context, includeSuperadmins bool) ([]auth.AdminUser, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `select ` + adminUserColumns + ` from admin_users`
	var args []any
	if !includeSuperadmins {
		query += ` where role <> $1`
		args = append(args, auth.RoleSuperadmin)
	}
	query += ` order by created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.AdminUser
	for rows.Next() {
		u, err := scanAdminUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Users) Update(ctx context.Context, id int64, upd auth.UserUpdate) (auth.AdminUser, error) {
	if s.db == nil {
		return auth.AdminUser{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.PasswordHash)
		idx++
	}
	if upd.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", idx))
		args = append(args, *upd.Role)
		idx++
	}
	switch {
	case upd.ClearTenant:
		sets = append(sets, "tenant_id = NULL")
	case upd.TenantID != nil:
		sets = append(sets, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, *upd.TenantID)
		idx++
	}
	if upd.NotifyForms != nil {
		sets = append(sets, fmt.Sprintf("notify_forms = $%d", idx))
		args = append(args, *upd.NotifyForms)
		idx++
	}
	if upd.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.IsActive)
		idx++
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update admin_users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.AdminUser{}, auth.ErrConflict
			}
			return auth.AdminUser{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.AdminUser{}, err
		}
		if aff == 0 {
			return auth.AdminUser{}, auth.ErrNotFound
		}
	}
	return s.GetByID(ctx, id)
}

func (s *Users) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from admin_users where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Users) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `update admin_users set last_login = $2 where id = $1`, id, at.UTC())
	return err
}

func (s *Users) CountByRole(ctx context.Context, role auth.Role) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from admin_users where role = $1`, role).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
