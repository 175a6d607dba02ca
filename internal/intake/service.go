package intake

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"formgate.dev/internal/auth"
	"formgate.dev/internal/blob"
	"formgate.dev/internal/ids"
	"formgate.dev/internal/mail"
	"formgate.dev/internal/obs"
)

const maxResumeBytes = 5 << 20

// Service accepts public form posts and serves the authenticated review API.
// All visibility and mutation decisions go through the auth policy; the
// dual-copy write mechanics live in the store.
type Service struct {
	store Store
	blobs blob.Store
	mail  mail.Notifier
	now   func() time.Time
	// syncNotify delivers notifications on the request goroutine. Tests use
	// it; production keeps delivery off the intake path.
	syncNotify bool
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSyncNotifications delivers notification email synchronously.
func WithSyncNotifications() Option {
	return func(s *Service) { s.syncNotify = true }
}

// NewService constructs the intake service.
func NewService(store Store, blobs blob.Store, notifier mail.Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("intake: store is required")
	}
	if blobs == nil {
		return nil, errors.New("intake: blob store is required")
	}
	if notifier == nil {
		notifier = mail.Logger{}
	}
	s := &Service{
		store: store,
		blobs: blobs,
		mail:  notifier,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AcceptContact validates and persists a contact form post.
func (s *Service) AcceptContact(ctx context.Context, tenantID string, form ContactForm) (Submission, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Submission{}, fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	if err := validateIdentity(form.Name, form.Email); err != nil {
		return Submission{}, err
	}
	if strings.TrimSpace(form.Message) == "" {
		return Submission{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	sub := Submission{
		ID:        ids.New(),
		TenantID:  tenantID,
		Kind:      KindContact,
		Name:      strings.TrimSpace(form.Name),
		Email:     strings.TrimSpace(strings.ToLower(form.Email)),
		Phone:     strings.TrimSpace(form.Phone),
		Message:   strings.TrimSpace(form.Message),
		Status:    StatusNew,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.store.CreateDual(ctx, sub)
	if err != nil {
		return Submission{}, err
	}
	obs.SubmissionAccepted(string(KindContact))
	s.notify(ctx, created)
	return created, nil
}

// AcceptApplication validates and persists a job-application post, storing
// the resume (when supplied) in the blob store first.
func (s *Service) AcceptApplication(ctx context.Context, tenantID string, form ApplicationForm) (Submission, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Submission{}, fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	if err := validateIdentity(form.Name, form.Email); err != nil {
		return Submission{}, err
	}
	if strings.TrimSpace(form.Position) == "" {
		return Submission{}, fmt.Errorf("%w: position is required", ErrInvalidInput)
	}
	if len(form.Resume) > maxResumeBytes {
		return Submission{}, fmt.Errorf("%w: resume exceeds %d bytes", ErrInvalidInput, maxResumeBytes)
	}

	id := ids.New()
	var resumeKey string
	if len(form.Resume) > 0 {
		resumeKey = resumeBlobKey(id, form.ResumeFilename)
		if err := s.blobs.Put(ctx, resumeKey, form.Resume); err != nil {
			return Submission{}, fmt.Errorf("intake: store resume: %w", err)
		}
	}
	sub := Submission{
		ID:        id,
		TenantID:  tenantID,
		Kind:      KindApplication,
		Name:      strings.TrimSpace(form.Name),
		Email:     strings.TrimSpace(strings.ToLower(form.Email)),
		Phone:     strings.TrimSpace(form.Phone),
		Message:   strings.TrimSpace(form.Message),
		Position:  strings.TrimSpace(form.Position),
		ResumeKey: resumeKey,
		Status:    StatusNew,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.store.CreateDual(ctx, sub)
	if err != nil {
		return Submission{}, err
	}
	obs.SubmissionAccepted(string(KindApplication))
	s.notify(ctx, created)
	return created, nil
}

// ListQuery narrows authenticated submission listings.
type ListQuery struct {
	Tenant         string
	Kind           string
	AgencyCopies   bool
	IncludeDeleted bool
}

// List returns submissions visible to the actor. Agency copies require an
// unscoped role; tenant-scoped actors are always pinned to their own tenant.
func (s *Service) List(ctx context.Context, actor auth.Principal, q ListQuery) ([]Submission, error) {
	filter := ListFilter{AgencyCopies: q.AgencyCopies, IncludeDeleted: q.IncludeDeleted}
	if q.Kind != "" {
		kind := Kind(q.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, q.Kind)
		}
		filter.Kind = &kind
	}

	if q.AgencyCopies {
		// Audit copies are visible to the agency role and, via this explicit
		// check, to superadmin. Tenant-scoped roles never see them.
		if actor.Role != auth.RoleAgency && actor.Role != auth.RoleSuperadmin {
			return nil, auth.ErrForbidden
		}
		if q.Tenant != "" {
			tenant := q.Tenant
			filter.TenantID = &tenant
		}
		return s.store.List(ctx, filter)
	}

	switch {
	case q.Tenant != "":
		if !auth.CanAccessTenant(actor, q.Tenant) {
			return nil, auth.ErrForbidden
		}
		tenant := q.Tenant
		filter.TenantID = &tenant
	case actor.Role == auth.RoleAgency:
		// Unrestricted cross-tenant listing.
	case actor.TenantID != nil:
		filter.TenantID = actor.TenantID
	default:
		return nil, auth.ErrForbidden
	}
	return s.store.List(ctx, filter)
}

// Get loads one submission, applying the same visibility rules as List.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (Submission, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if err := s.canSee(actor, sub); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// Resume returns the stored resume bytes for an application submission.
func (s *Service) Resume(ctx context.Context, actor auth.Principal, id string) ([]byte, error) {
	sub, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sub.ResumeKey == "" {
		return nil, ErrNotFound
	}
	return s.blobs.Get(ctx, sub.ResumeKey)
}

// Update mutates status or notes on a tenant-owned copy. Agency audit copies
// are immutable regardless of role.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, upd Update) (Submission, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if err := s.canSee(actor, sub); err != nil {
		return Submission{}, err
	}
	if !auth.CanModify(actor) {
		return Submission{}, auth.ErrForbidden
	}
	if sub.IsAgencyCopy {
		return Submission{}, ErrImmutable
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return Submission{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
	}
	return s.store.Update(ctx, id, upd)
}

// Delete soft-deletes a tenant-owned copy. The agency audit copy stays.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.canSee(actor, sub); err != nil {
		return err
	}
	if !auth.CanModify(actor) {
		return auth.ErrForbidden
	}
	if sub.IsAgencyCopy {
		return ErrImmutable
	}
	return s.store.SoftDelete(ctx, id)
}

func (s *Service) canSee(actor auth.Principal, sub Submission) error {
	if sub.IsAgencyCopy {
		if actor.Role != auth.RoleAgency && actor.Role != auth.RoleSuperadmin {
			// Hidden, not forbidden: scoped roles must not learn that audit
			// copies exist for a given id.
			return ErrNotFound
		}
		return nil
	}
	if !auth.CanAccessTenant(actor, sub.TenantID) {
		return auth.ErrForbidden
	}
	return nil
}

// notify fans the submission out to eligible admins. Best-effort: failures
// are logged and counted, never surfaced to the submitter.
func (s *Service) notify(ctx context.Context, sub Submission) {
	if s.syncNotify {
		s.deliver(ctx, sub)
		return
	}
	go s.deliver(context.WithoutCancel(ctx), sub)
}

func (s *Service) deliver(ctx context.Context, sub Submission) {
	recipients, err := s.store.Recipients(ctx, sub.TenantID, sub.Kind)
	if err != nil {
		obs.NotificationFailed()
		obs.LogRequest(map[string]any{
			"level": "error", "msg": "notification_recipients_failed",
			"submission_id": sub.ID, "error": err.Error(),
		})
		return
	}
	if len(recipients) == 0 {
		return
	}
	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, r.Email)
	}
	msg := mail.Message{
		To:      to,
		Subject: fmt.Sprintf("New %s submission for %s", sub.Kind, sub.TenantID),
		Body:    notificationBody(sub),
	}
	messageID, err := s.mail.Send(ctx, msg)
	if err != nil {
		obs.NotificationFailed()
		obs.LogRequest(map[string]any{
			"level": "error", "msg": "notification_send_failed",
			"submission_id": sub.ID, "error": err.Error(),
		})
		return
	}
	obs.LogRequest(map[string]any{
		"level": "info", "msg": "notification_sent",
		"submission_id": sub.ID, "message_id": messageID, "recipients": len(to),
	})
}

func notificationBody(sub Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Submission %s (%s)\n", sub.ID, sub.Kind)
	fmt.Fprintf(&b, "Tenant: %s\n", sub.TenantID)
	fmt.Fprintf(&b, "From: %s <%s>\n", sub.Name, sub.Email)
	if sub.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", sub.Phone)
	}
	if sub.Position != "" {
		fmt.Fprintf(&b, "Position: %s\n", sub.Position)
	}
	if sub.ResumeKey != "" {
		b.WriteString("Resume: attached in dashboard\n")
	}
	if sub.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", sub.Message)
	}
	return b.String()
}

func validateIdentity(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return nil
}

func resumeBlobKey(submissionID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".pdf", ".doc", ".docx", ".txt", ".rtf":
	default:
		ext = ".bin"
	}
	return "resumes/" + submissionID + ext
}
