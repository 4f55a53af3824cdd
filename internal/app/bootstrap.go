package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"commons/api/internal/store"
	"commons/api/internal/util"
)

// Bootstrap seeds an empty database with an admin account and a welcome page
// so a fresh deployment is immediately usable. The generated admin password
// is printed once to the log; it exists nowhere else.
func (s *Service) Bootstrap(ctx context.Context) error {
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		return nil
	}

	password, err := randomToken()
	if err != nil {
		return fmt.Errorf("generate admin password: %w", err)
	}
	password = password[:16]
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := s.now().UTC()
	admin := store.User{
		ID:              util.NewID("user"),
		DisplayName:     "Admin",
		Email:           "admin@commons.local",
		PasswordHash:    string(hash),
		Role:            "admin",
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("bootstrap: created admin account %s with password %s", admin.Email, password)

	count, err := s.store.CountContent(ctx)
	if err != nil {
		return fmt.Errorf("count content: %w", err)
	}
	if count > 0 {
		return nil
	}

	welcome := store.ContentItem{
		ID:          util.NewID("cnt"),
		Slug:        "welcome",
		Title:       "Welcome to Commons",
		Body:        "This is your first page. Sign in as admin to edit it, invite members, and start publishing.",
		Excerpt:     "Getting started with your Commons instance.",
		ContentType: "page",
		Status:      store.StatusPublished,
		Visibility:  store.VisibilityPublic,
		AuthorID:    admin.ID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
		AuthorName:  admin.DisplayName,
	}
	if err := s.store.InsertContent(ctx, welcome, nil); err != nil {
		return fmt.Errorf("seed welcome page: %w", err)
	}
	s.syncSearch(welcome)
	return nil
}

// ReindexSearch pushes all published content into the search index; called at
// startup after Bootstrap.
func (s *Service) ReindexSearch(ctx context.Context) {
	if s.search == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	s.search.Reindex(ctx)
}
