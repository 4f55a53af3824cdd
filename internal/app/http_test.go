package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"commons/api/internal/authpw"
	"commons/api/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service, *memStore) {
	t.Helper()
	svc, ms := newTestService(t)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc, ms
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

// signUpAndVerify runs the full account flow over HTTP and returns an access
// token for the new member.
func signUpAndVerify(t *testing.T, baseURL, email string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/api/auth/signup", "", map[string]any{
		"email":       email,
		"password":    "correct horse",
		"displayName": "Test User",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d body=%v", resp.StatusCode, body)
	}
	devToken, _ := body["devVerificationToken"].(string)
	if devToken == "" {
		t.Fatalf("no dev verification token in %v", body)
	}
	resp, body = doJSON(t, http.MethodPost, baseURL+"/api/auth/verify-email", "", map[string]any{"token": devToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d body=%v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no access token in %v", body)
	}
	return token
}

func TestHealthAndUnknownRoute(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("unknown route: %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: %d", resp.StatusCode)
	}
}

func TestContentLifecycleOverHTTP(t *testing.T) {
	server, _, ms := newTestServer(t)
	token := signUpAndVerify(t, server.URL, "author@example.com")

	// Create.
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/content", token, map[string]any{
		"title": "My First Post",
		"body":  "original body",
		"tags":  []string{"go"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if body["slug"] != "my-first-post" || body["status"] != store.StatusDraft || body["version"] != float64(1) {
		t.Fatalf("create body: %v", body)
	}

	// Update with the right version.
	resp, body = doJSON(t, http.MethodPatch, server.URL+"/api/content/"+id, token, map[string]any{
		"expectedVersion": 1,
		"body":            "edited body",
		"changeSummary":   "first edit",
	})
	if resp.StatusCode != http.StatusOK || body["version"] != float64(2) {
		t.Fatalf("update: %d %v", resp.StatusCode, body)
	}

	// Stale version conflicts.
	resp, body = doJSON(t, http.MethodPatch, server.URL+"/api/content/"+id, token, map[string]any{
		"expectedVersion": 1,
		"body":            "too late",
	})
	if resp.StatusCode != http.StatusConflict || body["code"] != "CONFLICT" {
		t.Fatalf("stale update: %d %v", resp.StatusCode, body)
	}

	// expectedVersion is optional; without it the update applies to the
	// version read inside the request and the store guard still protects
	// against real races.
	resp, body = doJSON(t, http.MethodPatch, server.URL+"/api/content/"+id, token, map[string]any{
		"body": "edited again",
	})
	if resp.StatusCode != http.StatusOK || body["version"] != float64(3) {
		t.Fatalf("versionless update: %d %v", resp.StatusCode, body)
	}

	// Version history.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/content/"+id+"/versions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("versions: %d %v", resp.StatusCode, body)
	}
	versions, _ := body["versions"].([]any)
	if len(versions) != 2 {
		t.Fatalf("versions = %v", body)
	}
	first, _ := versions[0].(map[string]any)
	if first["versionNumber"] != float64(2) || first["body"] != "edited body" {
		t.Fatalf("snapshot = %v", first)
	}

	// Anonymous callers cannot read version history at all.
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/content/"+id+"/versions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous versions: %d", resp.StatusCode)
	}

	// Revert to version 1.
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/content/"+id+"/revert", token, map[string]any{"versionNumber": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revert: %d %v", resp.StatusCode, body)
	}
	if body["version"] != float64(4) || body["body"] != "original body" || body["status"] != store.StatusDraft {
		t.Fatalf("revert body: %v", body)
	}

	// Submit for review over the transition route.
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/content/"+id+"/submit", token, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != store.StatusInReview {
		t.Fatalf("submit: %d %v", resp.StatusCode, body)
	}

	if item, ok := ms.content[id]; !ok || item.Status != store.StatusInReview {
		t.Fatalf("store state after submit: %+v", item)
	}

	// The path segment resolves as a slug too.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/content/my-first-post", token, nil)
	if resp.StatusCode != http.StatusOK || body["id"] != id {
		t.Fatalf("get by slug: %d %v", resp.StatusCode, body)
	}

	// DELETE archives.
	resp, body = doJSON(t, http.MethodDelete, server.URL+"/api/content/"+id, token, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != store.StatusArchived {
		t.Fatalf("archive: %d %v", resp.StatusCode, body)
	}
}

func TestReadDenialsLookLikeMissingContent(t *testing.T) {
	server, _, _ := newTestServer(t)
	authorToken := signUpAndVerify(t, server.URL, "author@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/content", authorToken, map[string]any{
		"title": "Hidden Draft",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)

	// Anonymous readers get the same 404 for a draft as for nothing at all.
	resp, draftBody := doJSON(t, http.MethodGet, server.URL+"/api/content/"+id, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("anonymous draft read: %d", resp.StatusCode)
	}
	resp, missingBody := doJSON(t, http.MethodGet, server.URL+"/api/content/cnt_does_not_exist", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing read: %d", resp.StatusCode)
	}
	if fmt.Sprint(draftBody) != fmt.Sprint(missingBody) {
		t.Fatalf("denial is distinguishable: %v vs %v", draftBody, missingBody)
	}

	// The author still sees it.
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/content/"+id, authorToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("author read: %d", resp.StatusCode)
	}

	// A garbage bearer token is a 401, not an anonymous read.
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/content/"+id, "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", resp.StatusCode)
	}

	// Writes without a session are 401.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/content", "", map[string]any{"title": "Nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create: %d", resp.StatusCode)
	}
}

func TestSessionIntrospectionAndRefresh(t *testing.T) {
	server, svc, _ := newTestServer(t)
	ctx := context.Background()

	signUp, err := svc.SignUp(ctx, authpw.SignUpRequest{
		Email:       "ada@example.com",
		Password:    "correct horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	creds, err := svc.VerifyEmail(ctx, signUp.DevVerificationToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/session", creds.Token, nil)
	if resp.StatusCode != http.StatusOK || body["authenticated"] != true || body["userId"] != creds.UserID {
		t.Fatalf("session: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/session", "", nil)
	if resp.StatusCode != http.StatusOK || body["authenticated"] != false {
		t.Fatalf("anonymous session: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": creds.RefreshToken,
	})
	rotated, _ := body["token"].(string)
	if resp.StatusCode != http.StatusOK || rotated == "" {
		t.Fatalf("refresh: %d %v", resp.StatusCode, body)
	}

	// The rotated-out token no longer works.
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": creds.RefreshToken,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh: %d %v", resp.StatusCode, body)
	}
}

func TestListContentFiltersFromQuery(t *testing.T) {
	server, _, ms := newTestServer(t)
	token := signUpAndVerify(t, server.URL, "author@example.com")

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/content?status=draft&type=article&tag=go&limit=5&offset=10", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %v", resp.StatusCode, body)
	}
	f := ms.lastFilter
	if f.Status != store.StatusDraft || f.ContentType != "article" || f.TagSlug != "go" || f.Limit != 5 || f.Offset != 10 {
		t.Fatalf("filter = %+v", f)
	}
	if _, ok := body["items"].([]any); !ok {
		t.Fatalf("items missing: %v", body)
	}
	if body["total"] != float64(0) {
		t.Fatalf("total = %v", body["total"])
	}
}

func TestTagsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := signUpAndVerify(t, server.URL, "author@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/content", token, map[string]any{
		"title": "Tagged",
		"tags":  []string{"Go", "Tips"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/tags", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tags: %d %v", resp.StatusCode, body)
	}
	tags, _ := body["tags"].([]any)
	if len(tags) != 2 {
		t.Fatalf("tags = %v", body)
	}
	first, _ := tags[0].(map[string]any)
	if first["slug"] != "go" {
		t.Fatalf("first tag = %v", first)
	}
}
