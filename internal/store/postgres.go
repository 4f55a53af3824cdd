package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict means a guarded content update lost the race: the
	// row's version no longer matched the version the caller read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrStatusConflict means a guarded status transition lost the race.
	ErrStatusConflict = errors.New("status conflict")
	ErrDuplicate      = errors.New("duplicate")
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- users ----

const userColumns = `id, display_name, email, password_hash, role, is_email_verified,
	COALESCE(verification_token, ''), verification_expires_at, deactivated_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.Role, &u.IsEmailVerified,
		&u.VerificationToken, &u.VerificationExpiresAt, &u.DeactivatedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token, verification_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $9)
	`, u.ID, u.DisplayName, u.Email, u.PasswordHash, u.Role, u.IsEmailVerified, u.VerificationToken, u.VerificationExpiresAt, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email already registered", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return scanUser(row)
}

func (p *Postgres) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (p *Postgres) SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET verification_token = $2, verification_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return requireRow(res, ErrNotFound)
}

func (p *Postgres) VerifyEmail(ctx context.Context, token string, now time.Time) (User, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_email_verified = TRUE, verification_token = NULL, verification_expires_at = NULL, updated_at = NOW()
		WHERE verification_token = $1 AND verification_expires_at > $2
		RETURNING `+userColumns,
		token, now)
	return scanUser(row)
}

func (p *Postgres) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(res, ErrNotFound)
}

func (p *Postgres) CreatePasswordReset(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks the token used and returns its user in one
// statement, so a token can never be redeemed twice.
func (p *Postgres) ConsumePasswordReset(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := p.db.QueryRowContext(ctx, `
		UPDATE password_resets SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id
	`, token, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume password reset: %w", err)
	}
	return userID, nil
}

// ---- content ----

const contentColumns = `c.id, c.slug, c.title, c.body, c.excerpt, c.content_type, c.featured_image,
	c.status, c.visibility, c.author_id, c.reviewer_id, c.project_id, c.version,
	c.created_at, c.updated_at, c.published_at, u.display_name`

func scanContent(row interface{ Scan(...any) error }) (ContentItem, error) {
	var c ContentItem
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.Body, &c.Excerpt, &c.ContentType, &c.FeaturedImage,
		&c.Status, &c.Visibility, &c.AuthorID, &c.ReviewerID, &c.ProjectID, &c.Version,
		&c.CreatedAt, &c.UpdatedAt, &c.PublishedAt, &c.AuthorName)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, fmt.Errorf("scan content: %w", err)
	}
	return c, nil
}

func (p *Postgres) InsertContent(ctx context.Context, item ContentItem, tagIDs []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert content: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_items (id, slug, title, body, excerpt, content_type, featured_image,
			status, visibility, author_id, project_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, item.ID, item.Slug, item.Title, item.Body, item.Excerpt, item.ContentType, item.FeaturedImage,
		item.Status, item.Visibility, item.AuthorID, item.ProjectID, item.Version, item.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: slug already in use", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}

	if err := insertContentTags(ctx, tx, item.ID, tagIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert content: %w", err)
	}
	return nil
}

func insertContentTags(ctx context.Context, tx *sql.Tx, contentID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content_tags (content_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, contentID, tagID); err != nil {
			return fmt.Errorf("associate tag: %w", err)
		}
	}
	return nil
}

func (p *Postgres) GetContent(ctx context.Context, id string) (ContentItem, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items c JOIN users u ON u.id = c.author_id
		WHERE c.id = $1
	`, id)
	item, err := scanContent(row)
	if err != nil {
		return ContentItem{}, err
	}
	return p.attachTags(ctx, item)
}

func (p *Postgres) GetContentBySlug(ctx context.Context, slug string) (ContentItem, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items c JOIN users u ON u.id = c.author_id
		WHERE c.slug = $1
	`, slug)
	item, err := scanContent(row)
	if err != nil {
		return ContentItem{}, err
	}
	return p.attachTags(ctx, item)
}

func (p *Postgres) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM content_items WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (p *Postgres) attachTags(ctx context.Context, item ContentItem) (ContentItem, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug
		FROM tags t JOIN content_tags ct ON ct.tag_id = t.id
		WHERE ct.content_id = $1
		ORDER BY t.slug
	`, item.ID)
	if err != nil {
		return ContentItem{}, fmt.Errorf("load content tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return ContentItem{}, fmt.Errorf("scan tag: %w", err)
		}
		item.Tags = append(item.Tags, t)
	}
	return item, rows.Err()
}

func (p *Postgres) ListContent(ctx context.Context, f ContentFilter) ([]ContentItem, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "c.status = "+arg(f.Status))
	}
	if f.ContentType != "" {
		where = append(where, "c.content_type = "+arg(f.ContentType))
	}
	if f.AuthorID != "" {
		where = append(where, "c.author_id = "+arg(f.AuthorID))
	}
	if f.Visibility != "" {
		where = append(where, "c.visibility = "+arg(f.Visibility))
	}
	if f.ExcludeArchived {
		where = append(where, "c.status <> 'archived'")
	}
	if f.TagSlug != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM content_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.content_id = c.id AND t.slug = `+arg(f.TagSlug)+`)`)
	}
	if f.Search != "" {
		pattern := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf("(c.title ILIKE %s OR c.excerpt ILIKE %s OR c.body ILIKE %s)", pattern, pattern, pattern))
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items c WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count content: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + contentColumns + `
		FROM content_items c JOIN users u ON u.id = c.author_id
		WHERE ` + clause + `
		ORDER BY c.updated_at DESC, c.id
		LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range items {
		items[i], err = p.attachTags(ctx, items[i])
		if err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// UpdateContentGuarded persists a content-bearing update. item carries the new
// field values with item.Version already incremented; snapshot is the state as
// it was before the update, at snapshot.VersionNumber == item.Version-1. Both
// writes run in one transaction guarded on the old version, so a stale writer
// gets ErrVersionConflict and neither a snapshot nor an update lands.
//
// Plain edits never touch status, reviewer_id, or published_at: those belong
// to the workflow and may change concurrently without a version bump, so
// writing them back from the editor's read would silently undo a transition.
// Reverts set forceDraft, which is the one status write this path performs.
func (p *Postgres) UpdateContentGuarded(ctx context.Context, item ContentItem, snapshot VersionSnapshot, forceDraft, replaceTags bool, tagIDs []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin content update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_versions (content_id, version_number, title, body, changed_by, change_summary, change_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, snapshot.ContentID, snapshot.VersionNumber, snapshot.Title, snapshot.Body,
		snapshot.ChangedBy, snapshot.ChangeSummary, snapshot.ChangeKind)
	if isUniqueViolation(err) {
		// Another writer already archived this version number.
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("insert version snapshot: %w", err)
	}

	statusClause := ""
	if forceDraft {
		statusClause = `status = '` + StatusDraft + `', reviewer_id = NULL, published_at = NULL,`
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE content_items
		SET title = $3, body = $4, excerpt = $5, content_type = $6, featured_image = $7,
			visibility = $8, project_id = $9, `+statusClause+`
			version = $10, updated_at = $11
		WHERE id = $1 AND version = $2
	`, item.ID, item.Version-1, item.Title, item.Body, item.Excerpt, item.ContentType,
		item.FeaturedImage, item.Visibility, item.ProjectID, item.Version, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("guarded content update: %w", err)
	}
	if err := requireRow(res, ErrVersionConflict); err != nil {
		return err
	}

	if replaceTags {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_tags WHERE content_id = $1`, item.ID); err != nil {
			return fmt.Errorf("clear content tags: %w", err)
		}
		if err := insertContentTags(ctx, tx, item.ID, tagIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit content update: %w", err)
	}
	return nil
}

// UpdateContentStatus persists a workflow transition guarded on the status the
// transition fired from. Status changes do not bump the version and record no
// snapshot; only content-bearing edits do.
func (p *Postgres) UpdateContentStatus(ctx context.Context, item ContentItem, fromStatus string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE content_items
		SET status = $3, reviewer_id = $4, published_at = $5, updated_at = $6
		WHERE id = $1 AND status = $2
	`, item.ID, fromStatus, item.Status, item.ReviewerID, item.PublishedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("guarded status update: %w", err)
	}
	return requireRow(res, ErrStatusConflict)
}

func (p *Postgres) ListVersions(ctx context.Context, contentID string) ([]VersionSnapshot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, content_id, version_number, title, body, changed_by, change_summary, change_kind, created_at
		FROM content_versions
		WHERE content_id = $1
		ORDER BY version_number DESC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var snapshots []VersionSnapshot
	for rows.Next() {
		var s VersionSnapshot
		if err := rows.Scan(&s.ID, &s.ContentID, &s.VersionNumber, &s.Title, &s.Body,
			&s.ChangedBy, &s.ChangeSummary, &s.ChangeKind, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (p *Postgres) GetVersion(ctx context.Context, contentID string, versionNumber int) (VersionSnapshot, error) {
	var s VersionSnapshot
	err := p.db.QueryRowContext(ctx, `
		SELECT id, content_id, version_number, title, body, changed_by, change_summary, change_kind, created_at
		FROM content_versions
		WHERE content_id = $1 AND version_number = $2
	`, contentID, versionNumber).Scan(&s.ID, &s.ContentID, &s.VersionNumber, &s.Title, &s.Body,
		&s.ChangedBy, &s.ChangeSummary, &s.ChangeKind, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return VersionSnapshot{}, ErrNotFound
	}
	if err != nil {
		return VersionSnapshot{}, fmt.Errorf("get version: %w", err)
	}
	return s, nil
}

func (p *Postgres) CountContent(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// ---- tags ----

// EnsureTags upserts tags by slug. Each entry carries the id to use if the tag
// is new; existing tags keep their id and get their display name refreshed.
func (p *Postgres) EnsureTags(ctx context.Context, tags []Tag) ([]Tag, error) {
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		var saved Tag
		err := p.db.QueryRowContext(ctx, `
			INSERT INTO tags (id, name, slug) VALUES ($1, $2, $3)
			ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name, slug
		`, t.ID, t.Name, t.Slug).Scan(&saved.ID, &saved.Name, &saved.Slug)
		if err != nil {
			return nil, fmt.Errorf("upsert tag %q: %w", t.Slug, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (p *Postgres) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, COUNT(ct.content_id)
		FROM tags t LEFT JOIN content_tags ct ON ct.tag_id = t.id
		GROUP BY t.id, t.name, t.slug
		ORDER BY t.slug
	`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
