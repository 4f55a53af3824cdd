package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"commons/api/internal/auth"
	"commons/api/internal/authpw"
	"commons/api/internal/export"
	"commons/api/internal/search"
	"commons/api/internal/store"
	"commons/api/internal/workflow"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Account routes, no session required.
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        sess.UserID,
			"userName":      sess.UserName,
			"role":          sess.Role,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		creds, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, credentialsResponse(creds))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		sess := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				sess = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), sess, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		viewer, ok := s.optionalSession(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		resp := s.service.Search(viewer, search.Query{
			Text:        q.Get("q"),
			ContentType: q.Get("type"),
			Limit:       limit,
			Offset:      offset,
		})
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
		tags, err := s.service.ListTags(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		out := make([]map[string]any, 0, len(tags))
		for _, t := range tags {
			out = append(out, map[string]any{
				"id":         t.ID,
				"name":       t.Name,
				"slug":       t.Slug,
				"usageCount": t.UsageCount,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": out})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "content" {
		s.handleContent(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleContent routes everything under /api/content.
func (s *HTTPServer) handleContent(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		s.handleListContent(w, r)
	case len(parts) == 0 && r.Method == http.MethodPost:
		s.handleCreateContent(w, r)
	case len(parts) == 2 && parts[0] == "slug" && r.Method == http.MethodGet:
		s.handleGetContentBySlug(w, r, parts[1])
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetContent(w, r, parts[0])
	case len(parts) == 1 && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		s.handleUpdateContent(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleTransition(w, r, parts[0], workflow.ActionArchive)
	case len(parts) == 2 && parts[1] == "versions" && r.Method == http.MethodGet:
		s.handleListVersions(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "versions" && r.Method == http.MethodGet:
		s.handleGetVersion(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "revert" && r.Method == http.MethodPost:
		s.handleRevert(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "export" && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		s.handleExport(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "featured-image" && r.Method == http.MethodPost:
		s.handleFeaturedImage(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "mirror" && r.Method == http.MethodGet:
		s.handleMirrorHistory(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost && isTransition(parts[1]):
		s.handleTransition(w, r, parts[0], workflow.Action(parts[1]))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func isTransition(action string) bool {
	switch workflow.Action(action) {
	case workflow.ActionSubmit, workflow.ActionApprove, workflow.ActionPublish,
		workflow.ActionUnpublish, workflow.ActionArchive:
		return true
	}
	return false
}

func (s *HTTPServer) handleListContent(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.optionalSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, total, err := s.service.ListContent(r.Context(), viewer, store.ContentFilter{
		Status:      q.Get("status"),
		ContentType: q.Get("type"),
		AuthorID:    q.Get("author"),
		Visibility:  q.Get("visibility"),
		TagSlug:     q.Get("tag"),
		Search:      q.Get("search"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, contentResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

func (s *HTTPServer) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		Title       string   `json:"title"`
		Body        string   `json:"body"`
		Excerpt     string   `json:"excerpt"`
		ContentType string   `json:"contentType"`
		Visibility  string   `json:"visibility"`
		ProjectID   *string  `json:"projectId"`
		Tags        []string `json:"tags"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.CreateContent(r.Context(), sess, CreateContentInput{
		Title:       body.Title,
		Body:        body.Body,
		Excerpt:     body.Excerpt,
		ContentType: body.ContentType,
		Visibility:  body.Visibility,
		ProjectID:   body.ProjectID,
		Tags:        body.Tags,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contentResponse(item))
}

// handleGetContent resolves the path segment as an id first and falls back to
// slug lookup, so /api/content/{idOrSlug} works for both.
func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request, idOrSlug string) {
	viewer, ok := s.optionalSession(w, r)
	if !ok {
		return
	}
	item, err := s.service.GetContent(r.Context(), viewer, idOrSlug)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) && domainErr.Status == http.StatusNotFound {
			item, err = s.service.GetContentBySlug(r.Context(), viewer, idOrSlug)
		}
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, contentResponse(item))
}

func (s *HTTPServer) handleGetContentBySlug(w http.ResponseWriter, r *http.Request, slug string) {
	viewer, ok := s.optionalSession(w, r)
	if !ok {
		return
	}
	item, err := s.service.GetContentBySlug(r.Context(), viewer, slug)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(item))
}

func (s *HTTPServer) handleUpdateContent(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		ExpectedVersion *int      `json:"expectedVersion"`
		Title           *string   `json:"title"`
		Body            *string   `json:"body"`
		Excerpt         *string   `json:"excerpt"`
		ContentType     *string   `json:"contentType"`
		FeaturedImage   *string   `json:"featuredImage"`
		Visibility      *string   `json:"visibility"`
		ProjectID       *string   `json:"projectId"`
		Tags            *[]string `json:"tags"`
		ChangeSummary   string    `json:"changeSummary"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	expectedVersion := 0
	if body.ExpectedVersion != nil {
		expectedVersion = *body.ExpectedVersion
	}
	item, err := s.service.UpdateContent(r.Context(), sess, id, UpdateContentInput{
		ExpectedVersion: expectedVersion,
		Update: store.ContentUpdate{
			Title:         body.Title,
			Body:          body.Body,
			Excerpt:       body.Excerpt,
			ContentType:   body.ContentType,
			FeaturedImage: body.FeaturedImage,
			Visibility:    body.Visibility,
			ProjectID:     body.ProjectID,
		},
		Tags:          body.Tags,
		ChangeSummary: body.ChangeSummary,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(item))
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request, id string, action workflow.Action) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	item, err := s.service.Transition(r.Context(), sess, id, action)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(item))
}

func (s *HTTPServer) handleRevert(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		VersionNumber int    `json:"versionNumber"`
		Summary       string `json:"summary"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.VersionNumber < 1 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "versionNumber must be a positive integer", nil)
		return
	}
	item, err := s.service.RevertContent(r.Context(), sess, id, body.VersionNumber, body.Summary)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(item))
}

// Version history always needs a session, even for otherwise public items.
func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	versions, err := s.service.ListVersionSnapshots(r.Context(), &sess, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": out})
}

func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request, id, rawVersion string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	versionNumber, err := strconv.Atoi(rawVersion)
	if err != nil || versionNumber < 1 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "version must be a positive integer", nil)
		return
	}
	snapshot, err := s.service.GetVersionSnapshot(r.Context(), &sess, id, versionNumber)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse(snapshot))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	viewer, ok := s.optionalSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := export.Request{
		ContentID:      id,
		Format:         export.Format(q.Get("format")),
		IncludeHistory: q.Get("history") == "true",
	}
	req.Version, _ = strconv.Atoi(q.Get("version"))
	if r.Method == http.MethodPost {
		var body struct {
			Format         string `json:"format"`
			Version        int    `json:"version"`
			IncludeHistory bool   `json:"includeHistory"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Format != "" {
			req.Format = export.Format(body.Format)
		}
		if body.Version > 0 {
			req.Version = body.Version
		}
		req.IncludeHistory = req.IncludeHistory || body.IncludeHistory
	}
	if req.Format == "" {
		req.Format = export.FormatPDF
	}

	result, err := s.service.Export(r.Context(), viewer, req)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
			return
		}
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// handleFeaturedImage accepts a multipart upload with a "file" part; a raw
// body with an image Content-Type works too.
func (s *HTTPServer) handleFeaturedImage(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	var (
		body io.Reader = r.Body
		size           = r.ContentLength
	)
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "multipart upload needs a file part", nil)
			return
		}
		defer file.Close()
		body = file
		size = header.Size
		contentType = header.Header.Get("Content-Type")
	}

	item, err := s.service.AttachFeaturedImage(r.Context(), sess, id, contentType, body, size)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(item))
}

func (s *HTTPServer) handleMirrorHistory(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	commits, err := s.service.MirrorHistory(r.Context(), sess, id, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

// ---- auth handlers ----

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	res, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	response := map[string]any{
		"userId":  res.UserID,
		"message": "Check your email to verify your account",
	}
	if res.DevVerificationToken != "" {
		response["devVerificationToken"] = res.DevVerificationToken
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	creds, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsResponse(creds))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	creds, err := s.service.VerifyEmail(r.Context(), body.Token)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsResponse(creds))
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	devToken, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	response := map[string]any{"message": "If the address has an account, a reset link is on its way"}
	if devToken != "" {
		response["devResetToken"] = devToken
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- session helpers ----

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

// optionalSession resolves a bearer token when present. A missing token means
// an anonymous viewer; a presented-but-invalid token is still a 401.
func (s *HTTPServer) optionalSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	token := bearerToken(r)
	if token == "" {
		return nil, true
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return nil, false
	}
	return &sess, true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: internal error: %v", err)
	}
	writeError(w, status, code, message, details)
}

// ---- response shapes ----

func credentialsResponse(creds Credentials) map[string]any {
	return map[string]any{
		"token":        creds.Token,
		"refreshToken": creds.RefreshToken,
		"userId":       creds.UserID,
		"userName":     creds.UserName,
		"role":         creds.Role,
	}
}

func contentResponse(item store.ContentItem) map[string]any {
	tags := make([]map[string]any, 0, len(item.Tags))
	for _, t := range item.Tags {
		tags = append(tags, map[string]any{"id": t.ID, "name": t.Name, "slug": t.Slug})
	}
	return map[string]any{
		"id":            item.ID,
		"slug":          item.Slug,
		"title":         item.Title,
		"body":          item.Body,
		"excerpt":       item.Excerpt,
		"contentType":   item.ContentType,
		"featuredImage": item.FeaturedImage,
		"status":        item.Status,
		"visibility":    item.Visibility,
		"authorId":      item.AuthorID,
		"authorName":    item.AuthorName,
		"reviewerId":    item.ReviewerID,
		"projectId":     item.ProjectID,
		"version":       item.Version,
		"createdAt":     item.CreatedAt,
		"updatedAt":     item.UpdatedAt,
		"publishedAt":   item.PublishedAt,
		"tags":          tags,
	}
}

func versionResponse(v store.VersionSnapshot) map[string]any {
	return map[string]any{
		"contentId":     v.ContentID,
		"versionNumber": v.VersionNumber,
		"title":         v.Title,
		"body":          v.Body,
		"changedBy":     v.ChangedBy,
		"changeSummary": v.ChangeSummary,
		"changeKind":    v.ChangeKind,
		"createdAt":     v.CreatedAt,
	}
}

// ---- middleware & plumbing ----

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrStatusConflict) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
