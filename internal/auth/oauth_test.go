package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// newTokenServer はOAuthトークンエンドポイントを模したテストサーバーを返す。
func newTokenServer(t *testing.T, wantCode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != wantCode {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// requireBearer はアクセストークンが付与されているかを検証するハンドラーラッパー。
func requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	u, err := url.Parse(provider.GetLoginURL("test-state-value"))
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}

	q := u.Query()
	if q.Get("client_id") != "test-client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "test-state-value" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("redirect_uri") != "http://localhost:8080/auth/google/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if !strings.Contains(q.Get("scope"), "email") {
		t.Errorf("scope %q should contain email", q.Get("scope"))
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	userInfoServer := httptest.NewServer(requireBearer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"sub":   "google-123",
			"email": "alice@example.com",
			"name":  "Alice",
		})
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/cb",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	info, err := provider.ExchangeCode(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if info.ProviderUserID != "google-123" || info.Email != "alice@example.com" || info.Name != "Alice" {
		t.Errorf("info = %+v", info)
	}
	if info.Provider != "google" {
		t.Errorf("Provider = %q, want google", info.Provider)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_InvalidCode(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID: "id",
		TokenURL: tokenServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "wrong"); err == nil {
		t.Fatal("expected error for invalid code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_EmptySub(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	userInfoServer := httptest.NewServer(requireBearer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"email": "a@example.com"})
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "id",
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error for empty sub")
	}
}

func TestGitHubOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:    "gh-id",
		RedirectURL: "http://localhost:8080/auth/github/callback",
	})

	u, err := url.Parse(provider.GetLoginURL("xyz"))
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if u.Host != "github.com" {
		t.Errorf("host = %q, want github.com", u.Host)
	}
	if u.Query().Get("state") != "xyz" || u.Query().Get("client_id") != "gh-id" {
		t.Errorf("query = %v", u.Query())
	}
	if provider.Name() != "github" {
		t.Errorf("Name() = %q, want github", provider.Name())
	}
}

func TestGitHubOAuthProvider_ExchangeCode_PublicEmail(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	mux := http.NewServeMux()
	mux.HandleFunc("/user", requireBearer(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 42, "login": "octocat", "name": "", "email": "octo@example.com",
		})
	}))
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		t.Error("/user/emails should not be called when profile email is public")
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID: "id",
		TokenURL: tokenServer.URL,
		APIURL:   api.URL,
	})

	info, err := provider.ExchangeCode(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if info.ProviderUserID != "42" {
		t.Errorf("ProviderUserID = %q, want 42", info.ProviderUserID)
	}
	if info.Name != "octocat" {
		t.Errorf("Name = %q, want login fallback octocat", info.Name)
	}
	if info.Email != "octo@example.com" {
		t.Errorf("Email = %q", info.Email)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_PrivateEmail_UsesPrimaryVerified(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	mux := http.NewServeMux()
	mux.HandleFunc("/user", requireBearer(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 7, "login": "ghost", "name": "Ghost"})
	}))
	mux.HandleFunc("/user/emails", requireBearer(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "unverified@example.com", "primary": true, "verified": false},
			{"email": "ghost@example.com", "primary": true, "verified": true},
		})
	}))
	api := httptest.NewServer(mux)
	defer api.Close()

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID: "id",
		TokenURL: tokenServer.URL,
		APIURL:   api.URL + "/",
	})

	info, err := provider.ExchangeCode(context.Background(), "valid-code")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if info.Email != "ghost@example.com" {
		t.Errorf("Email = %q, want ghost@example.com", info.Email)
	}
	if info.Name != "Ghost" {
		t.Errorf("Name = %q, want Ghost", info.Name)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_UserEndpointError(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer api.Close()

	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID: "id",
		TokenURL: tokenServer.URL,
		APIURL:   api.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error when /user fails")
	}
}
