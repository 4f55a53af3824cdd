// Package app wires storage, workflow, and the supporting services into the
// content API. Every exported operation takes the caller's session (or nil
// for anonymous reads) and enforces the visibility and role rules itself.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"commons/api/internal/auth"
	"commons/api/internal/authpw"
	"commons/api/internal/email"
	"commons/api/internal/export"
	"commons/api/internal/media"
	"commons/api/internal/mirror"
	"commons/api/internal/rbac"
	"commons/api/internal/search"
	"commons/api/internal/session"
	"commons/api/internal/store"
	"commons/api/internal/util"
	"commons/api/internal/workflow"
)

const maxSlugAttempts = 20

// dataStore is the slice of store.Postgres the service uses; tests substitute
// a fake.
type dataStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CountUsers(ctx context.Context) (int, error)

	InsertContent(ctx context.Context, item store.ContentItem, tagIDs []string) error
	GetContent(ctx context.Context, id string) (store.ContentItem, error)
	GetContentBySlug(ctx context.Context, slug string) (store.ContentItem, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListContent(ctx context.Context, f store.ContentFilter) ([]store.ContentItem, int, error)
	UpdateContentGuarded(ctx context.Context, item store.ContentItem, snapshot store.VersionSnapshot, forceDraft, replaceTags bool, tagIDs []string) error
	UpdateContentStatus(ctx context.Context, item store.ContentItem, fromStatus string) error
	ListVersions(ctx context.Context, contentID string) ([]store.VersionSnapshot, error)
	GetVersion(ctx context.Context, contentID string, versionNumber int) (store.VersionSnapshot, error)
	CountContent(ctx context.Context) (int, error)

	EnsureTags(ctx context.Context, tags []store.Tag) ([]store.Tag, error)
	ListTags(ctx context.Context) ([]store.Tag, error)

	Ping(ctx context.Context) error
}

// Session is an authenticated caller.
type Session struct {
	UserID   string
	UserName string
	Role     rbac.Role
	// JTI and expiry of the presented access token, kept for logout.
	TokenID      string
	TokenExpires time.Time
}

// Credentials is what sign-in style endpoints hand back to the client.
type Credentials struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         rbac.Role
}

type Service struct {
	store    dataStore
	sessions session.Store
	accounts *authpw.Service
	mailer   *email.Service
	search   *search.Service
	mirror   *mirror.Service
	media    *media.Service
	exporter *export.Service

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	baseURL    string

	now func() time.Time
}

type ServiceConfig struct {
	Store      dataStore
	Sessions   session.Store
	Accounts   *authpw.Service
	Mailer     *email.Service
	Search     *search.Service
	Mirror     *mirror.Service
	Media      *media.Service
	Exporter   *export.Service
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BaseURL is the public frontend origin used in emailed links.
	BaseURL string
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		accounts:   cfg.Accounts,
		mailer:     cfg.Mailer,
		search:     cfg.Search,
		mirror:     cfg.Mirror,
		media:      cfg.Media,
		exporter:   cfg.Exporter,
		jwtSecret:  []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		now:        time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// ---- auth & sessions ----

type SignUpResult struct {
	UserID string
	// DevVerificationToken is only set when no mailer is configured, so
	// local setups can verify without an inbox.
	DevVerificationToken string
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (SignUpResult, error) {
	res, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return SignUpResult{}, mapAccountError(err)
	}

	if s.SMTPConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, res.VerificationToken)
		if err := s.mailer.SendVerification(res.User.Email, res.User.DisplayName, verifyURL); err != nil {
			log.Printf("app: send verification mail to %s: %v", res.User.Email, err)
		}
		return SignUpResult{UserID: res.User.ID}, nil
	}
	return SignUpResult{UserID: res.User.ID, DevVerificationToken: res.VerificationToken}, nil
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Credentials, error) {
	user, err := s.accounts.SignIn(ctx, emailAddr, password)
	if err != nil {
		return Credentials{}, mapAccountError(err)
	}
	return s.issueCredentials(ctx, user)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (Credentials, error) {
	user, err := s.accounts.VerifyEmail(ctx, token)
	if err != nil {
		return Credentials{}, mapAccountError(err)
	}
	return s.issueCredentials(ctx, user)
}

// RequestPasswordReset never reports whether the address exists.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (devToken string, err error) {
	user, token, err := s.accounts.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return "", mapAccountError(err)
	}
	if token == "" {
		return "", nil
	}
	if s.SMTPConfigured() {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
		if err := s.mailer.SendPasswordReset(user.Email, user.DisplayName, resetURL); err != nil {
			log.Printf("app: send reset mail to %s: %v", user.Email, err)
		}
		return "", nil
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.accounts.ResetPassword(ctx, token, newPassword); err != nil {
		return mapAccountError(err)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	hash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefresh(ctx, hash)
	if err != nil {
		return Credentials{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Credentials{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}

	// Rotate: the presented refresh token dies with this exchange.
	if err := s.sessions.RevokeRefresh(ctx, hash); err != nil {
		log.Printf("app: revoke rotated refresh token: %v", err)
	}
	return s.issueCredentials(ctx, user)
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.TokenID != "" {
		if err := s.sessions.RevokeAccess(ctx, sess.TokenID, sess.TokenExpires); err != nil {
			log.Printf("app: revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefresh(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("app: revoke refresh token: %v", err)
		}
	}
	return nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		UserID:       claims.Sub,
		UserName:     claims.Name,
		Role:         rbac.Normalize(claims.Role),
		TokenID:      claims.JTI,
		TokenExpires: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) issueCredentials(ctx context.Context, user store.User) (Credentials, error) {
	jti := util.NewID("tok")
	accessToken, err := auth.IssueToken(s.jwtSecret, auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: string(rbac.Normalize(user.Role)),
		JTI:  jti,
		Exp:  s.now().Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := randomToken()
	if err != nil {
		return Credentials{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.sessions.SaveRefresh(ctx, auth.HashToken(refreshToken), user.ID, s.now().Add(s.refreshTTL)); err != nil {
		return Credentials{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Credentials{
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         rbac.Normalize(user.Role),
	}, nil
}

func mapAccountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrInvalidInput):
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	case errors.Is(err, authpw.ErrEmailNotVerified):
		return domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Verify your email before signing in", nil)
	case errors.Is(err, authpw.ErrInvalidToken):
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid or expired token", nil)
	default:
		return err
	}
}

// ---- content ----

type CreateContentInput struct {
	Title       string
	Body        string
	Excerpt     string
	ContentType string
	Visibility  string
	ProjectID   *string
	Tags        []string
}

func (s *Service) CreateContent(ctx context.Context, sess Session, in CreateContentInput) (store.ContentItem, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.ContentItem{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = store.VisibilityPublic
	}
	if !store.ValidVisibility(visibility) {
		return store.ContentItem{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid visibility %q", in.Visibility), nil)
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "article"
	}

	tagIDs, tags, err := s.ensureTags(ctx, in.Tags)
	if err != nil {
		return store.ContentItem{}, err
	}

	now := s.now().UTC()
	item := store.ContentItem{
		ID:          util.NewID("cnt"),
		Title:       title,
		Body:        in.Body,
		Excerpt:     in.Excerpt,
		ContentType: contentType,
		Status:      store.StatusDraft,
		Visibility:  visibility,
		AuthorID:    sess.UserID,
		ProjectID:   in.ProjectID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		AuthorName:  sess.UserName,
		Tags:        tags,
	}

	// Slug collisions get a numeric suffix; a concurrent insert of the same
	// slug surfaces as ErrDuplicate and we try the next candidate.
	base := util.Slugify(title)
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt+1)
		}
		exists, err := s.store.SlugExists(ctx, candidate)
		if err != nil {
			return store.ContentItem{}, fmt.Errorf("check slug: %w", err)
		}
		if exists {
			continue
		}
		item.Slug = candidate
		err = s.store.InsertContent(ctx, item, tagIDs)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return store.ContentItem{}, fmt.Errorf("insert content: %w", err)
		}
		s.recordMirror(item, sess.UserName, "create")
		return item, nil
	}
	return store.ContentItem{}, domainError(http.StatusConflict, "CONFLICT", "could not allocate a unique slug", nil)
}

// canRead decides visibility. Denials are indistinguishable from absence:
// callers turn false into 404.
func canRead(item store.ContentItem, viewer *Session) bool {
	if viewer == nil {
		return item.Status == store.StatusPublished && item.Visibility == store.VisibilityPublic
	}
	if item.Status == store.StatusArchived {
		return viewer.UserID == item.AuthorID || viewer.Role == rbac.RoleAdmin
	}
	return true
}

// canEdit gates content-bearing writes.
func canEdit(item store.ContentItem, sess Session) bool {
	return sess.UserID == item.AuthorID || rbac.IsModerator(sess.Role)
}

func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *Service) GetContent(ctx context.Context, viewer *Session, id string) (store.ContentItem, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, err
	}
	if !canRead(item, viewer) {
		return store.ContentItem{}, errNotFound()
	}
	return item, nil
}

func (s *Service) GetContentBySlug(ctx context.Context, viewer *Session, slug string) (store.ContentItem, error) {
	item, err := s.store.GetContentBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, err
	}
	if !canRead(item, viewer) {
		return store.ContentItem{}, errNotFound()
	}
	return item, nil
}

func (s *Service) ListContent(ctx context.Context, viewer *Session, f store.ContentFilter) ([]store.ContentItem, int, error) {
	if viewer == nil {
		f.Status = store.StatusPublished
		f.Visibility = store.VisibilityPublic
	} else if f.Status == store.StatusArchived {
		// Archived listings are limited to one's own items, admins excepted.
		if viewer.Role != rbac.RoleAdmin {
			f.AuthorID = viewer.UserID
		}
	} else if f.Status == "" {
		if viewer.Role != rbac.RoleAdmin {
			f.ExcludeArchived = true
		}
	}
	if f.Status != "" && !store.ValidStatus(f.Status) {
		return nil, 0, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid status %q", f.Status), nil)
	}
	return s.store.ListContent(ctx, f)
}

type UpdateContentInput struct {
	// ExpectedVersion is an optional If-Match style token. Zero means "the
	// version current at read time"; the store's guarded write still turns
	// any real race into a conflict.
	ExpectedVersion int
	Update          store.ContentUpdate
	// Tags is tri-state: nil leaves associations untouched, empty clears.
	Tags          *[]string
	ChangeSummary string
}

func (s *Service) UpdateContent(ctx context.Context, sess Session, id string, in UpdateContentInput) (store.ContentItem, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, err
	}
	if !canRead(item, &sess) {
		return store.ContentItem{}, errNotFound()
	}
	if !canEdit(item, sess) {
		return store.ContentItem{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if item.Status == store.StatusArchived {
		return store.ContentItem{}, domainError(http.StatusBadRequest, "INVALID_TRANSITION", "archived content is read-only; revert it first", nil)
	}
	expected := in.ExpectedVersion
	if expected == 0 {
		expected = item.Version
	}
	if expected != item.Version {
		return store.ContentItem{}, versionConflict(item.Version, expected)
	}

	updated, err := applyUpdate(item, in.Update)
	if err != nil {
		return store.ContentItem{}, err
	}

	var (
		replaceTags bool
		tagIDs      []string
	)
	if in.Tags != nil {
		replaceTags = true
		tagIDs, updated.Tags, err = s.ensureTags(ctx, *in.Tags)
		if err != nil {
			return store.ContentItem{}, err
		}
	}

	now := s.now().UTC()
	snapshot := store.VersionSnapshot{
		ContentID:     item.ID,
		VersionNumber: item.Version,
		Title:         item.Title,
		Body:          item.Body,
		ChangedBy:     sess.UserID,
		ChangeSummary: in.ChangeSummary,
		ChangeKind:    store.ChangeEdit,
	}
	updated.Version = item.Version + 1
	updated.UpdatedAt = now

	if err := s.store.UpdateContentGuarded(ctx, updated, snapshot, false, replaceTags, tagIDs); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return store.ContentItem{}, versionConflict(item.Version, expected)
		}
		return store.ContentItem{}, fmt.Errorf("update content: %w", err)
	}

	s.recordMirror(updated, sess.UserName, "edit v"+fmt.Sprint(updated.Version))
	s.syncSearch(updated)
	return updated, nil
}

func applyUpdate(item store.ContentItem, upd store.ContentUpdate) (store.ContentItem, error) {
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return store.ContentItem{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title cannot be empty", nil)
		}
		item.Title = title
	}
	if upd.Body != nil {
		item.Body = *upd.Body
	}
	if upd.Excerpt != nil {
		item.Excerpt = *upd.Excerpt
	}
	if upd.ContentType != nil && strings.TrimSpace(*upd.ContentType) != "" {
		item.ContentType = strings.TrimSpace(*upd.ContentType)
	}
	if upd.FeaturedImage != nil {
		item.FeaturedImage = *upd.FeaturedImage
	}
	if upd.Visibility != nil {
		if !store.ValidVisibility(*upd.Visibility) {
			return store.ContentItem{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid visibility %q", *upd.Visibility), nil)
		}
		item.Visibility = *upd.Visibility
	}
	if upd.ProjectID != nil {
		if *upd.ProjectID == "" {
			item.ProjectID = nil
		} else {
			item.ProjectID = upd.ProjectID
		}
	}
	return item, nil
}

func versionConflict(current, expected int) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", "content was modified by someone else",
		map[string]any{"currentVersion": current, "expectedVersion": expected})
}

// Transition runs a workflow action and persists it under a status guard.
func (s *Service) Transition(ctx context.Context, sess Session, id string, action workflow.Action) (store.ContentItem, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, err
	}
	if !canRead(item, &sess) {
		return store.ContentItem{}, errNotFound()
	}

	now := s.now().UTC()
	updated, err := workflow.Transition(item, action, workflow.Actor{ID: sess.UserID, Role: sess.Role}, now)
	if err != nil {
		return store.ContentItem{}, mapWorkflowError(err)
	}

	if err := s.store.UpdateContentStatus(ctx, updated, item.Status); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return store.ContentItem{}, domainError(http.StatusConflict, "CONFLICT", "content status changed concurrently", nil)
		}
		return store.ContentItem{}, fmt.Errorf("persist transition: %w", err)
	}

	s.recordMirror(updated, sess.UserName, string(action))
	s.syncSearch(updated)
	return updated, nil
}

func mapWorkflowError(err error) error {
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition):
		return domainError(http.StatusBadRequest, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, workflow.ErrNotAuthorized):
		return domainError(http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	default:
		return err
	}
}

// RevertContent restores a prior snapshot as a new version. The revert is an
// ordinary content-bearing edit: the pre-revert state is archived first and
// the item lands back in draft.
func (s *Service) RevertContent(ctx context.Context, sess Session, id string, targetVersion int, summary string) (store.ContentItem, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, err
	}
	// The revert guard supersedes the archived-read rule: editors may revert
	// archived items they could not otherwise see. Callers who fail the guard
	// and could not read the item either get the usual disguised 404.
	if err := workflow.CanRevert(item, workflow.Actor{ID: sess.UserID, Role: sess.Role}); err != nil {
		if !canRead(item, &sess) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, mapWorkflowError(err)
	}

	target, err := s.store.GetVersion(ctx, id, targetVersion)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("version %d does not exist", targetVersion), nil)
		}
		return store.ContentItem{}, err
	}

	if summary == "" {
		summary = fmt.Sprintf("Revert to version %d", targetVersion)
	}
	snapshot := store.VersionSnapshot{
		ContentID:     item.ID,
		VersionNumber: item.Version,
		Title:         item.Title,
		Body:          item.Body,
		ChangedBy:     sess.UserID,
		ChangeSummary: summary,
		ChangeKind:    store.ChangeRevert,
	}

	updated := item
	updated.Title = target.Title
	updated.Body = target.Body
	updated.Status = store.StatusDraft
	updated.PublishedAt = nil
	updated.ReviewerID = nil
	updated.Version = item.Version + 1
	updated.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateContentGuarded(ctx, updated, snapshot, true, false, nil); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return store.ContentItem{}, versionConflict(item.Version, item.Version)
		}
		return store.ContentItem{}, fmt.Errorf("revert content: %w", err)
	}

	s.recordMirror(updated, sess.UserName, fmt.Sprintf("revert to v%d", targetVersion))
	s.syncSearch(updated)
	return updated, nil
}

func (s *Service) ListVersionSnapshots(ctx context.Context, viewer *Session, id string) ([]store.VersionSnapshot, error) {
	if _, err := s.GetContent(ctx, viewer, id); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, id)
}

func (s *Service) GetVersionSnapshot(ctx context.Context, viewer *Session, id string, versionNumber int) (store.VersionSnapshot, error) {
	if _, err := s.GetContent(ctx, viewer, id); err != nil {
		return store.VersionSnapshot{}, err
	}
	snapshot, err := s.store.GetVersion(ctx, id, versionNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.VersionSnapshot{}, errNotFound()
		}
		return store.VersionSnapshot{}, err
	}
	return snapshot, nil
}

// MirrorHistory exposes the git mirror's commit log to editors and admins.
func (s *Service) MirrorHistory(ctx context.Context, sess Session, id string, limit int) ([]mirror.CommitInfo, error) {
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound()
		}
		return nil, err
	}
	if sess.UserID != item.AuthorID && !rbac.IsModerator(sess.Role) {
		return nil, errNotFound()
	}
	if s.mirror == nil {
		return []mirror.CommitInfo{}, nil
	}
	return s.mirror.History(id, limit)
}

// ---- tags ----

func (s *Service) ListTags(ctx context.Context) ([]store.Tag, error) {
	return s.store.ListTags(ctx)
}

// ensureTags normalizes names, upserts them by slug, and returns association
// ids plus the resolved tags. Duplicate and empty names collapse away.
func (s *Service) ensureTags(ctx context.Context, names []string) ([]string, []store.Tag, error) {
	var candidates []store.Tag
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		slug := util.Slugify(name)
		if seen[slug] {
			continue
		}
		seen[slug] = true
		candidates = append(candidates, store.Tag{ID: util.NewID("tag"), Name: name, Slug: slug})
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	tags, err := s.store.EnsureTags(ctx, candidates)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure tags: %w", err)
	}
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids, tags, nil
}

// ---- search ----

func (s *Service) Search(viewer *Session, q search.Query) search.Response {
	q.PublicOnly = viewer == nil
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// syncSearch keeps the index in step with the item's published state.
func (s *Service) syncSearch(item store.ContentItem) {
	if s.search == nil {
		return
	}
	if item.Status != store.StatusPublished {
		s.search.RemoveContent(item.ID)
		return
	}
	tags := make([]string, 0, len(item.Tags))
	for _, t := range item.Tags {
		tags = append(tags, t.Slug)
	}
	s.search.IndexContent(search.ContentRecord{
		ID:          item.ID,
		Slug:        item.Slug,
		Title:       item.Title,
		Excerpt:     item.Excerpt,
		Body:        item.Body,
		ContentType: item.ContentType,
		Visibility:  item.Visibility,
		Tags:        tags,
	})
}

// ---- export & media ----

func (s *Service) Export(ctx context.Context, viewer *Session, req export.Request) (*export.Result, error) {
	if _, err := s.GetContent(ctx, viewer, req.ContentID); err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	return s.exporter.Export(ctx, req)
}

// AttachFeaturedImage uploads the image and records the new URL as a guarded
// content update, so the change shows up in version history like any edit.
func (s *Service) AttachFeaturedImage(ctx context.Context, sess Session, id, contentType string, body io.Reader, size int64) (store.ContentItem, error) {
	if s.media == nil {
		return store.ContentItem{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
	}
	item, err := s.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ContentItem{}, errNotFound()
		}
		return store.ContentItem{}, err
	}
	if !canEdit(item, sess) {
		return store.ContentItem{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	url, err := s.media.UploadImage(ctx, id, contentType, body, size)
	if err != nil {
		return store.ContentItem{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}

	return s.UpdateContent(ctx, sess, id, UpdateContentInput{
		ExpectedVersion: item.Version,
		Update:          store.ContentUpdate{FeaturedImage: &url},
		ChangeSummary:   "Update featured image",
	})
}

// ---- misc ----

func (s *Service) recordMirror(item store.ContentItem, author, message string) {
	if s.mirror == nil {
		return
	}
	go func() {
		_, err := s.mirror.Record(item.ID, mirror.Snapshot{
			Title:      item.Title,
			Body:       item.Body,
			Excerpt:    item.Excerpt,
			Status:     item.Status,
			Visibility: item.Visibility,
			Version:    item.Version,
		}, author, message)
		if err != nil {
			log.Printf("app: mirror %s: %v", item.ID, err)
		}
	}()
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
