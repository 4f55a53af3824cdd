package workflow

import (
	"errors"
	"testing"
	"time"

	"commons/api/internal/rbac"
	"commons/api/internal/store"
)

func item(status string) store.ContentItem {
	return store.ContentItem{
		ID:       "cnt_1",
		AuthorID: "user_author",
		Status:   status,
		Version:  3,
	}
}

var (
	author   = Actor{ID: "user_author", Role: rbac.RoleMember}
	member   = Actor{ID: "user_other", Role: rbac.RoleMember}
	editor   = Actor{ID: "user_editor", Role: rbac.RoleEditor}
	admin    = Actor{ID: "user_admin", Role: rbac.RoleAdmin}
	testTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func TestSubmit(t *testing.T) {
	got, err := Transition(item(store.StatusDraft), ActionSubmit, author, testTime)
	if err != nil {
		t.Fatalf("submit by author: %v", err)
	}
	if got.Status != store.StatusInReview {
		t.Fatalf("expected in_review, got %s", got.Status)
	}

	if _, err := Transition(item(store.StatusDraft), ActionSubmit, editor, testTime); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("submit by non-author: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := Transition(item(store.StatusPublished), ActionSubmit, author, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("submit from published: expected ErrInvalidTransition, got %v", err)
	}
}

func TestApprove(t *testing.T) {
	got, err := Transition(item(store.StatusInReview), ActionApprove, editor, testTime)
	if err != nil {
		t.Fatalf("approve by editor: %v", err)
	}
	if got.Status != store.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}
	if got.ReviewerID == nil || *got.ReviewerID != editor.ID {
		t.Fatalf("expected reviewer %s, got %v", editor.ID, got.ReviewerID)
	}

	if _, err := Transition(item(store.StatusInReview), ActionApprove, member, testTime); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("approve by member: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := Transition(item(store.StatusInReview), ActionApprove, author, testTime); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("approve by author (member role): expected ErrNotAuthorized, got %v", err)
	}
	if _, err := Transition(item(store.StatusDraft), ActionApprove, editor, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve from draft: expected ErrInvalidTransition, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	for _, actor := range []Actor{author, editor} {
		got, err := Transition(item(store.StatusApproved), ActionPublish, actor, testTime)
		if err != nil {
			t.Fatalf("publish approved by %s: %v", actor.ID, err)
		}
		if got.Status != store.StatusPublished {
			t.Fatalf("expected published, got %s", got.Status)
		}
		if got.PublishedAt == nil || !got.PublishedAt.Equal(testTime) {
			t.Fatalf("publishedAt not stamped: %v", got.PublishedAt)
		}
	}

	if _, err := Transition(item(store.StatusApproved), ActionPublish, member, testTime); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("publish by unrelated member: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := Transition(item(store.StatusDraft), ActionPublish, author, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("publish draft by author: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := Transition(item(store.StatusInReview), ActionPublish, editor, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("publish in_review by editor: expected ErrInvalidTransition, got %v", err)
	}
}

func TestPublishAdminOverride(t *testing.T) {
	// Admins may publish from any editorial stage, skipping approval.
	for _, status := range []string{store.StatusDraft, store.StatusInReview, store.StatusApproved, store.StatusPublished} {
		got, err := Transition(item(status), ActionPublish, admin, testTime)
		if err != nil {
			t.Fatalf("admin publish from %s: %v", status, err)
		}
		if got.Status != store.StatusPublished {
			t.Fatalf("admin publish from %s: got status %s", status, got.Status)
		}
	}

	if _, err := Transition(item(store.StatusArchived), ActionPublish, admin, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("admin publish from archived: expected ErrInvalidTransition, got %v", err)
	}
}

func TestUnpublish(t *testing.T) {
	published := item(store.StatusPublished)
	at := testTime.Add(-time.Hour)
	published.PublishedAt = &at

	got, err := Transition(published, ActionUnpublish, editor, testTime)
	if err != nil {
		t.Fatalf("unpublish by editor: %v", err)
	}
	if got.Status != store.StatusDraft {
		t.Fatalf("expected draft, got %s", got.Status)
	}
	if got.PublishedAt != nil {
		t.Fatal("publishedAt must be cleared on unpublish")
	}

	if _, err := Transition(published, ActionUnpublish, author, testTime); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("unpublish by author (member role): expected ErrNotAuthorized, got %v", err)
	}
	if _, err := Transition(item(store.StatusDraft), ActionUnpublish, editor, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unpublish a draft: expected ErrInvalidTransition, got %v", err)
	}
}

func TestArchive(t *testing.T) {
	for _, status := range []string{store.StatusDraft, store.StatusInReview, store.StatusApproved, store.StatusPublished} {
		for _, actor := range []Actor{author, admin} {
			got, err := Transition(item(status), ActionArchive, actor, testTime)
			if err != nil {
				t.Fatalf("archive from %s by %s: %v", status, actor.ID, err)
			}
			if got.Status != store.StatusArchived {
				t.Fatalf("expected archived, got %s", got.Status)
			}
		}
	}

	// Editors do not get to archive other people's content.
	if _, err := Transition(item(store.StatusDraft), ActionArchive, editor, testTime); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("archive by editor: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := Transition(item(store.StatusArchived), ActionArchive, admin, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("archive twice: expected ErrInvalidTransition, got %v", err)
	}
}

// TestTransitionMatrix sweeps every (status, action, actor) combination and
// asserts that anything outside the transition table fails with a named
// error, never a silent success.
func TestTransitionMatrix(t *testing.T) {
	statuses := []string{store.StatusDraft, store.StatusInReview, store.StatusApproved, store.StatusPublished, store.StatusArchived}
	actions := []Action{ActionSubmit, ActionApprove, ActionPublish, ActionUnpublish, ActionArchive}
	actors := []Actor{author, member, editor, admin}

	allowed := func(status string, action Action, actor Actor) bool {
		switch action {
		case ActionSubmit:
			return status == store.StatusDraft && actor.ID == "user_author"
		case ActionApprove:
			return status == store.StatusInReview && rbac.IsModerator(actor.Role)
		case ActionPublish:
			if actor.Role == rbac.RoleAdmin {
				return status != store.StatusArchived
			}
			return status == store.StatusApproved && (actor.ID == "user_author" || actor.Role == rbac.RoleEditor)
		case ActionUnpublish:
			return status == store.StatusPublished && rbac.IsModerator(actor.Role)
		case ActionArchive:
			return status != store.StatusArchived && (actor.ID == "user_author" || actor.Role == rbac.RoleAdmin)
		}
		return false
	}

	for _, status := range statuses {
		for _, action := range actions {
			for _, actor := range actors {
				_, err := Transition(item(status), action, actor, testTime)
				if allowed(status, action, actor) {
					if err != nil {
						t.Errorf("(%s, %s, %s) should succeed, got %v", status, action, actor.ID, err)
					}
					continue
				}
				if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrNotAuthorized) {
					t.Errorf("(%s, %s, %s) should fail with a named error, got %v", status, action, actor.ID, err)
				}
			}
		}
	}
}

func TestCanRevert(t *testing.T) {
	for _, actor := range []Actor{author, editor, admin} {
		if err := CanRevert(item(store.StatusPublished), actor); err != nil {
			t.Errorf("revert by %s: %v", actor.ID, err)
		}
	}
	if err := CanRevert(item(store.StatusPublished), member); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("revert by unrelated member: expected ErrNotAuthorized, got %v", err)
	}
}

func TestUnknownAction(t *testing.T) {
	if _, err := Transition(item(store.StatusDraft), Action("promote"), admin, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unknown action: expected ErrInvalidTransition, got %v", err)
	}
}
