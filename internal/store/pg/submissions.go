package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"formgate.dev/internal/auth"
	"formgate.dev/internal/ids"
	"formgate.dev/internal/intake"
)

// Submissions persists form submissions, including the agency audit copies.
type Submissions struct {
	db *sql.DB
}

var _ intake.Store = (*Submissions)(nil)

const submissionColumns = `id, tenant_id, kind, name, email, phone, message, position, resume_key, status, notes, is_agency_copy, created_at, deleted_at`

func scanSubmission(row interface{ Scan(...any) error }) (intake.Submission, error) {
	var (
		sub       intake.Submission
		deletedAt sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.Kind, &sub.Name, &sub.Email, &sub.Phone, &sub.Message, &sub.Position, &sub.ResumeKey, &sub.Status, &sub.Notes, &sub.IsAgencyCopy, &sub.CreatedAt, &deletedAt)
	if err != nil {
		return intake.Submission{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		sub.DeletedAt = &t
	}
	return sub, nil
}

const insertSubmission = `
	insert into submissions (id, tenant_id, kind, name, email, phone, message, position, resume_key, status, notes, is_agency_copy, created_at)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

// CreateDual writes the tenant-owned row and the agency audit row in one
// transaction. The audit row gets its own id and never changes afterwards.
func (s *Submissions) CreateDual(ctx context.Context, sub intake.Submission) (intake.Submission, error) {
	if s.db == nil {
		return intake.Submission{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return intake.Submission{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertSubmission,
		sub.ID, sub.TenantID, sub.Kind, sub.Name, sub.Email, sub.Phone, sub.Message,
		sub.Position, sub.ResumeKey, sub.Status, sub.Notes, false, sub.CreatedAt.UTC()); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return intake.Submission{}, auth.ErrConflict
		}
		return intake.Submission{}, err
	}
	if _, err := tx.ExecContext(ctx, insertSubmission,
		ids.New(), sub.TenantID, sub.Kind, sub.Name, sub.Email, sub.Phone, sub.Message,
		sub.Position, sub.ResumeKey, sub.Status, sub.Notes, true, sub.CreatedAt.UTC()); err != nil {
		return intake.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return intake.Submission{}, err
	}
	return sub, nil
}

func (s *Submissions) List(ctx context.Context, f intake.ListFilter) ([]intake.Submission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		where = []string{"is_agency_copy = $1"}
		args  = []any{f.AgencyCopies}
		idx   = 2
	)
	if f.TenantID != nil {
		where = append(where, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, *f.TenantID)
		idx++
	}
	if f.Kind != nil {
		where = append(where, fmt.Sprintf("kind = $%d", idx))
		args = append(args, *f.Kind)
		idx++
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at is null")
	}
	query := fmt.Sprintf(`
		select %s
		from submissions
		where %s
		order by created_at desc, id desc
	`, submissionColumns, strings.Join(where, " and "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []intake.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Submissions) Get(ctx context.Context, id string) (intake.Submission, error) {
	if s.db == nil {
		return intake.Submission{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+submissionColumns+`
		from submissions
		where id = $1
	`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return intake.Submission{}, intake.ErrNotFound
	}
	if err != nil {
		return intake.Submission{}, err
	}
	return sub, nil
}

func (s *Submissions) Update(ctx context.Context, id string, upd intake.Update) (intake.Submission, error) {
	if s.db == nil {
		return intake.Submission{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if upd.Notes != nil {
		sets = append(sets, fmt.Sprintf("notes = $%d", idx))
		args = append(args, *upd.Notes)
		idx++
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update submissions set %s where id = $%d and deleted_at is null`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return intake.Submission{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return intake.Submission{}, err
		}
		if aff == 0 {
			return intake.Submission{}, intake.ErrNotFound
		}
	}
	return s.Get(ctx, id)
}

func (s *Submissions) SoftDelete(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update submissions set deleted_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return intake.ErrNotFound
	}
	return nil
}

// Recipients selects active admins whose notification preference covers the
// kind. Unscoped accounts (null tenant) match every tenant.
func (s *Submissions) Recipients(ctx context.Context, tenantID string, kind intake.Kind) ([]intake.Recipient, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select email, name
		from admin_users
		where is_active
		  and (tenant_id is null or tenant_id = $1)
		  and (notify_forms = 'all' or notify_forms = $2)
		order by email
	`, tenantID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []intake.Recipient
	for rows.Next() {
		var r intake.Recipient
		if err := rows.Scan(&r.Email, &r.Name); err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recipients, nil
}
