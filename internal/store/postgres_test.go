package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"commons/api/internal/util"
)

// Integration tests run only when COMMONS_TEST_DATABASE_URL points at a
// disposable Postgres; everything in here creates its own rows and never
// assumes an empty database.
func testDB(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("COMMONS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COMMONS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgres(db)
}

func seedUser(t *testing.T, p *Postgres) User {
	t.Helper()
	u := User{
		ID:          util.NewID("user"),
		DisplayName: "Test Author",
		Email:       util.NewID("mail") + "@example.test",
		Role:        "member",
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedContent(t *testing.T, p *Postgres, authorID string) ContentItem {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	item := ContentItem{
		ID:          util.NewID("cnt"),
		Slug:        util.NewID("slug"),
		Title:       "Original title",
		Body:        "Original body",
		ContentType: "article",
		Status:      StatusDraft,
		Visibility:  VisibilityPublic,
		AuthorID:    authorID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.InsertContent(context.Background(), item, nil); err != nil {
		t.Fatalf("seed content: %v", err)
	}
	return item
}

func TestGuardedUpdateArchivesPriorVersion(t *testing.T) {
	p := testDB(t)
	ctx := context.Background()
	author := seedUser(t, p)
	item := seedContent(t, p, author.ID)

	for i := 0; i < 3; i++ {
		current, err := p.GetContent(ctx, item.ID)
		if err != nil {
			t.Fatalf("get content: %v", err)
		}
		snapshot := VersionSnapshot{
			ContentID:     current.ID,
			VersionNumber: current.Version,
			Title:         current.Title,
			Body:          current.Body,
			ChangedBy:     author.ID,
			ChangeKind:    ChangeEdit,
		}
		current.Title = "Edited title"
		current.Version++
		current.UpdatedAt = time.Now().UTC()
		if err := p.UpdateContentGuarded(ctx, current, snapshot, false, false, nil); err != nil {
			t.Fatalf("guarded update %d: %v", i, err)
		}
	}

	got, err := p.GetContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if got.Version != 4 {
		t.Fatalf("expected version 4 after three edits, got %d", got.Version)
	}

	versions, err := p.ListVersions(ctx, item.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	// The archive must hold exactly 1..version-1, newest first, no gaps.
	if len(versions) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(versions))
	}
	for i, s := range versions {
		want := got.Version - 1 - i
		if s.VersionNumber != want {
			t.Fatalf("snapshot %d: expected version %d, got %d", i, want, s.VersionNumber)
		}
	}
}

func TestGuardedUpdateDetectsStaleVersion(t *testing.T) {
	p := testDB(t)
	ctx := context.Background()
	author := seedUser(t, p)
	item := seedContent(t, p, author.ID)

	fresh := item
	fresh.Title = "First writer wins"
	fresh.Version = 2
	fresh.UpdatedAt = time.Now().UTC()
	snapshot := VersionSnapshot{ContentID: item.ID, VersionNumber: 1, Title: item.Title, Body: item.Body, ChangedBy: author.ID, ChangeKind: ChangeEdit}
	if err := p.UpdateContentGuarded(ctx, fresh, snapshot, false, false, nil); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A second writer that read version 1 must lose, and must not leave a
	// snapshot or a partial update behind.
	stale := item
	stale.Title = "Stale writer"
	stale.Version = 2
	stale.UpdatedAt = time.Now().UTC()
	err := p.UpdateContentGuarded(ctx, stale, snapshot, false, false, nil)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err := p.GetContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if got.Title != "First writer wins" || got.Version != 2 {
		t.Fatalf("stale writer must not land: %q v%d", got.Title, got.Version)
	}
	versions, err := p.ListVersions(ctx, item.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected exactly 1 snapshot after a lost race, got %d", len(versions))
	}
}

func TestGuardedUpdatePreservesWorkflowColumns(t *testing.T) {
	p := testDB(t)
	ctx := context.Background()
	author := seedUser(t, p)
	item := seedContent(t, p, author.ID)

	// A status change lands between the writer's read and its guarded write.
	moved := item
	moved.Status = StatusInReview
	moved.UpdatedAt = time.Now().UTC()
	if err := p.UpdateContentStatus(ctx, moved, StatusDraft); err != nil {
		t.Fatalf("submit: %v", err)
	}

	edit := item // stale read: still thinks the row is a draft
	edit.Body = "Edited body"
	edit.Version = 2
	edit.UpdatedAt = time.Now().UTC()
	snapshot := VersionSnapshot{ContentID: item.ID, VersionNumber: 1, Title: item.Title, Body: item.Body, ChangedBy: author.ID, ChangeKind: ChangeEdit}
	if err := p.UpdateContentGuarded(ctx, edit, snapshot, false, false, nil); err != nil {
		t.Fatalf("guarded update: %v", err)
	}

	got, err := p.GetContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if got.Status != StatusInReview {
		t.Fatalf("plain edit overwrote a concurrent status change: %s", got.Status)
	}
	if got.Body != "Edited body" || got.Version != 2 {
		t.Fatalf("edit did not land: %q v%d", got.Body, got.Version)
	}

	// A revert write forces the row back to draft and clears the review trail.
	revert := got
	revert.Body = item.Body
	revert.Version = 3
	revert.UpdatedAt = time.Now().UTC()
	snap2 := VersionSnapshot{ContentID: item.ID, VersionNumber: 2, Title: got.Title, Body: got.Body, ChangedBy: author.ID, ChangeKind: ChangeRevert}
	if err := p.UpdateContentGuarded(ctx, revert, snap2, true, false, nil); err != nil {
		t.Fatalf("revert update: %v", err)
	}
	got, err = p.GetContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if got.Status != StatusDraft || got.ReviewerID != nil || got.PublishedAt != nil {
		t.Fatalf("revert must force draft: status=%s reviewer=%v publishedAt=%v", got.Status, got.ReviewerID, got.PublishedAt)
	}
}

func TestStatusGuard(t *testing.T) {
	p := testDB(t)
	ctx := context.Background()
	author := seedUser(t, p)
	item := seedContent(t, p, author.ID)

	item.Status = StatusInReview
	item.UpdatedAt = time.Now().UTC()
	if err := p.UpdateContentStatus(ctx, item, StatusDraft); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Replaying the same transition must fail: the row is no longer a draft.
	if err := p.UpdateContentStatus(ctx, item, StatusDraft); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
}

func TestEnsureTagsIsIdempotent(t *testing.T) {
	p := testDB(t)
	ctx := context.Background()

	slug := util.NewID("tag")
	first, err := p.EnsureTags(ctx, []Tag{{ID: util.NewID("tag"), Name: "Field Notes", Slug: slug}})
	if err != nil {
		t.Fatalf("ensure tags: %v", err)
	}
	second, err := p.EnsureTags(ctx, []Tag{{ID: util.NewID("tag"), Name: "Field notes", Slug: slug}})
	if err != nil {
		t.Fatalf("ensure tags again: %v", err)
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("tag id changed across upserts: %s vs %s", first[0].ID, second[0].ID)
	}
	if second[0].Name != "Field notes" {
		t.Fatalf("expected refreshed name, got %q", second[0].Name)
	}
}
