package store

import "time"

// Editorial lifecycle stages for a content item.
const (
	StatusDraft     = "draft"
	StatusInReview  = "in_review"
	StatusApproved  = "approved"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Visibility controls who may read an item; independent of status.
const (
	VisibilityPublic   = "public"
	VisibilityInternal = "internal"
	VisibilityMembers  = "members"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusInReview, StatusApproved, StatusPublished, StatusArchived:
		return true
	}
	return false
}

func ValidVisibility(visibility string) bool {
	switch visibility {
	case VisibilityPublic, VisibilityInternal, VisibilityMembers:
		return true
	}
	return false
}

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ContentItem is the mutable current representation of an editorial document.
// Version starts at 1 and increases by exactly one on every content-bearing
// update; the prior state of each version lives in content_versions.
type ContentItem struct {
	ID            string
	Slug          string
	Title         string
	Body          string
	Excerpt       string
	ContentType   string
	FeaturedImage string
	Status        string
	Visibility    string
	AuthorID      string
	ReviewerID    *string
	ProjectID     *string
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
	// Joined for API responses
	AuthorName string
	Tags       []Tag
}

// Version snapshot change kinds.
const (
	ChangeEdit   = "edit"
	ChangeRevert = "revert"
)

// VersionSnapshot is an immutable copy of an item's title/body as they were
// *before* the update that produced it. For any item the archive holds
// exactly version numbers 1..currentVersion-1, no gaps, no duplicates.
type VersionSnapshot struct {
	ID            int64
	ContentID     string
	VersionNumber int
	Title         string
	Body          string
	ChangedBy     string
	ChangeSummary string
	ChangeKind    string
	CreatedAt     time.Time
}

type Tag struct {
	ID   string
	Name string
	Slug string
	// Joined for the tag listing
	UsageCount int
}

// ContentUpdate carries a guarded partial update. Nil pointers mean "leave
// unchanged". Tags is tri-state: nil leaves associations alone, an empty
// slice clears them, a non-empty slice replaces them.
type ContentUpdate struct {
	Title         *string
	Body          *string
	Excerpt       *string
	ContentType   *string
	FeaturedImage *string
	Visibility    *string
	ProjectID     *string
}

// ContentFilter narrows List queries. Zero values mean "no constraint".
type ContentFilter struct {
	Status      string
	ContentType string
	AuthorID    string
	Visibility  string
	TagSlug     string
	Search      string
	// ExcludeArchived drops archived items even when Status is empty; the
	// service sets it for everyone who is not the author or an admin.
	ExcludeArchived bool
	Limit           int
	Offset          int
}
