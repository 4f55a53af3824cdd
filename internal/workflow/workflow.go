// Package workflow implements the editorial state machine for content items.
//
// Transitions are pure: they never touch storage. The content service loads
// the item, runs the transition, and persists the result under a status guard
// so concurrent transitions cannot both win.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"commons/api/internal/rbac"
	"commons/api/internal/store"
)

type Action string

const (
	ActionSubmit    Action = "submit"
	ActionApprove   Action = "approve"
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
	ActionArchive   Action = "archive"
)

// Actor is the identity attempting a transition.
type Actor struct {
	ID   string
	Role rbac.Role
}

var (
	// ErrInvalidTransition means the action is not legal from the item's
	// current status, regardless of who asks.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotAuthorized means the action exists for this status but the actor
	// fails its guard.
	ErrNotAuthorized = errors.New("not authorized")
)

// Transition applies action to a copy of item and returns the new item.
// It either returns a changed item or an error; there is no silent no-op.
func Transition(item store.ContentItem, action Action, actor Actor, now time.Time) (store.ContentItem, error) {
	switch action {
	case ActionSubmit:
		if item.Status != store.StatusDraft {
			return item, fmt.Errorf("%w: only drafts can be submitted for review", ErrInvalidTransition)
		}
		if actor.ID != item.AuthorID {
			return item, fmt.Errorf("%w: only the author can submit for review", ErrNotAuthorized)
		}
		item.Status = store.StatusInReview

	case ActionApprove:
		if item.Status != store.StatusInReview {
			return item, fmt.Errorf("%w: only content in review can be approved", ErrInvalidTransition)
		}
		if !rbac.IsModerator(actor.Role) {
			return item, fmt.Errorf("%w: approval requires the editor or admin role", ErrNotAuthorized)
		}
		reviewer := actor.ID
		item.ReviewerID = &reviewer
		item.Status = store.StatusApproved

	case ActionPublish:
		if item.Status == store.StatusArchived {
			return item, fmt.Errorf("%w: archived content cannot be published", ErrInvalidTransition)
		}
		if actor.Role == rbac.RoleAdmin {
			// Admin escape hatch: publish from any editorial stage,
			// bypassing the approval step.
			item.Status = store.StatusPublished
			item.PublishedAt = &now
			break
		}
		if item.Status != store.StatusApproved {
			return item, fmt.Errorf("%w: only approved content can be published", ErrInvalidTransition)
		}
		if actor.ID != item.AuthorID && actor.Role != rbac.RoleEditor {
			return item, fmt.Errorf("%w: publishing requires authorship or the editor role", ErrNotAuthorized)
		}
		item.Status = store.StatusPublished
		item.PublishedAt = &now

	case ActionUnpublish:
		if item.Status != store.StatusPublished {
			return item, fmt.Errorf("%w: only published content can be unpublished", ErrInvalidTransition)
		}
		if !rbac.IsModerator(actor.Role) {
			return item, fmt.Errorf("%w: unpublishing requires the editor or admin role", ErrNotAuthorized)
		}
		item.Status = store.StatusDraft
		item.PublishedAt = nil

	case ActionArchive:
		if item.Status == store.StatusArchived {
			return item, fmt.Errorf("%w: content is already archived", ErrInvalidTransition)
		}
		if actor.ID != item.AuthorID && actor.Role != rbac.RoleAdmin {
			return item, fmt.Errorf("%w: archiving requires authorship or the admin role", ErrNotAuthorized)
		}
		item.Status = store.StatusArchived

	default:
		return item, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	item.UpdatedAt = now
	return item, nil
}

// CanRevert checks the guard for reverting item to a prior version. Revert is
// legal from any status; it always lands the item back in draft.
func CanRevert(item store.ContentItem, actor Actor) error {
	if actor.ID == item.AuthorID || rbac.IsModerator(actor.Role) {
		return nil
	}
	return fmt.Errorf("%w: reverting requires authorship or the editor or admin role", ErrNotAuthorized)
}

// Statuses a given action can legally fire from, for callers that want to
// explain the state machine (e.g. admin tooling).
func LegalSources(action Action, role rbac.Role) []string {
	switch action {
	case ActionSubmit:
		return []string{store.StatusDraft}
	case ActionApprove:
		return []string{store.StatusInReview}
	case ActionPublish:
		if role == rbac.RoleAdmin {
			return []string{store.StatusDraft, store.StatusInReview, store.StatusApproved, store.StatusPublished}
		}
		return []string{store.StatusApproved}
	case ActionUnpublish:
		return []string{store.StatusPublished}
	case ActionArchive:
		return []string{store.StatusDraft, store.StatusInReview, store.StatusApproved, store.StatusPublished}
	default:
		return nil
	}
}
