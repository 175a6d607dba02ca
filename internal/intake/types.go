package intake

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("intake: not found")
	ErrInvalidInput = errors.New("intake: invalid input")

	// ErrImmutable signals an attempt to mutate an agency audit copy.
	ErrImmutable = errors.New("intake: agency copy is immutable")
)

// Kind distinguishes the two public form types.
type Kind string

const (
	KindContact     Kind = "contact"
	KindApplication Kind = "application"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	return k == KindContact || k == KindApplication
}

// Status is the review workflow state of a tenant-owned submission.
type Status string

const (
	StatusNew      Status = "new"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	return s == StatusNew || s == StatusRead || s == StatusArchived
}

// Submission is one accepted form post. Every accepted post produces two
// rows with identical payload: the tenant-owned copy (mutable status, notes,
// soft-delete) and the agency-owned audit copy (immutable, visible only to
// unscoped roles).
type Submission struct {
	ID           string
	TenantID     string
	Kind         Kind
	Name         string
	Email        string
	Phone        string
	Message      string
	Position     string // application only
	ResumeKey    string // opaque blob store key, application only
	Status       Status
	Notes        string
	IsAgencyCopy bool
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// ContactForm is the validated payload of a contact form post.
type ContactForm struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// ApplicationForm is the validated payload of a job-application post. Resume
// bytes are optional; when present they are stored in the blob store and the
// submission records the key.
type ApplicationForm struct {
	Name           string
	Email          string
	Phone          string
	Position       string
	Message        string
	Resume         []byte
	ResumeFilename string
}

// ListFilter narrows submission listings. A nil TenantID means no tenant
// restriction (unscoped roles only).
type ListFilter struct {
	TenantID       *string
	Kind           *Kind
	AgencyCopies   bool
	IncludeDeleted bool
}

// Update carries optional field changes to a tenant-owned copy.
type Update struct {
	Status *Status
	Notes  *string
}

// Recipient is an admin eligible for a notification email.
type Recipient struct {
	Email string
	Name  string
}

// Store is the persistence interface for submissions. CreateDual writes both
// copies atomically and returns the tenant-owned one.
type Store interface {
	CreateDual(ctx context.Context, sub Submission) (Submission, error)
	List(ctx context.Context, f ListFilter) ([]Submission, error)
	Get(ctx context.Context, id string) (Submission, error)
	Update(ctx context.Context, id string, upd Update) (Submission, error)
	SoftDelete(ctx context.Context, id string) error
	// Recipients returns active admins whose notification preference covers
	// kind and who are either unscoped or scoped to tenantID.
	Recipients(ctx context.Context, tenantID string, kind Kind) ([]Recipient, error)
}
