package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionfy/visionfy/internal/config"
)

// fakeAPI serves the subset of the HTTP API the commands call.
type fakeAPI struct {
	mu          sync.Mutex
	access      string
	refreshes   int
	rateLimited bool
	lastPrompt  string
	lastForm    map[string]string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	write := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	tokens := func(w http.ResponseWriter, access, refresh string) {
		write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"access_token": access, "refresh_token": refresh, "expires_in": 900,
		}})
	}
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+f.access {
			write(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return false
		}
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret123" {
			write(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		f.mu.Lock()
		f.access = "access-1"
		f.mu.Unlock()
		tokens(w, "access-1", "refresh-1")
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.refreshes++
		f.access = "access-2"
		f.mu.Unlock()
		assert.Equal(t, "refresh-1", body["refresh_token"])
		tokens(w, "access-2", "refresh-2")
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		write(w, http.StatusOK, map[string]string{"message": "logged out"})
	})
	mux.HandleFunc("POST /api/v1/images/generate", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.mu.Lock()
		limited := f.rateLimited
		f.mu.Unlock()
		if limited {
			w.Header().Set("X-RateLimit-Limit", "10")
			w.Header().Set("X-RateLimit-Remaining", "0")
			write(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded. Please try again later."})
			return
		}
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastPrompt = body.Prompt
		f.mu.Unlock()
		write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"images": []string{"https://cdn.example/a.png", "https://cdn.example/b.png"},
			"usage":  map[string]int{"limit": 25, "remaining": 24},
		}})
	})
	mux.HandleFunc("POST /api/v1/images/variations", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		if err := r.ParseMultipartForm(1 << 20); !assert.NoError(t, err) {
			return
		}
		f.mu.Lock()
		f.lastForm = map[string]string{"size": r.FormValue("size"), "n": r.FormValue("n")}
		f.mu.Unlock()
		write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"images": []string{"https://cdn.example/v.png"},
		}})
	})
	mux.HandleFunc("GET /api/v1/usage", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"plan": "free", "daily_limit": 25, "used": 3, "remaining": 22,
			"resets_at": "2024-03-15T00:00:00Z", "plan_monthly_limit": 5,
		}})
	})
	return mux
}

func (f *fakeAPI) setRateLimited(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimited = v
}

func (f *fakeAPI) snapshot() (refreshes int, prompt string, form map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes, f.lastPrompt, f.lastForm
}

func (f *fakeAPI) expireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = "rotated-elsewhere"
}

type harness struct {
	t   *testing.T
	api *fakeAPI
	cfg config.ClientConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("VISIONFY_PASSWORD", "secret123")

	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	return &harness{
		t:   t,
		api: api,
		cfg: config.ClientConfig{
			APIURL:  srv.URL,
			DataDir: t.TempDir(),
			Timeout: 5 * time.Second,
			Log:     config.LogConfig{Level: "error", Format: "text"},
		},
	}
}

// run executes one command line against a fresh command tree.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cfg := h.cfg
	root := NewRootCommand(&cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) login() {
	h.t.Helper()
	out, err := h.run("login", "--email", "ada@example.com")
	require.NoError(h.t, err)
	require.Contains(h.t, out, "Logged in as ada@example.com")
}

func TestGenerate_RequiresLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("generate", "a", "cat")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)
	t.Setenv("VISIONFY_PASSWORD", "nope")

	_, err := h.run("login", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")

	_, err = h.run("usage")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestGenerate_RecordsLocalGallery(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("generate", "--size", "1792x1024", "-n", "2", "A", "lighthouse", "at", "dusk")
	require.NoError(t, err)
	assert.Contains(t, out, "https://cdn.example/a.png")
	assert.Contains(t, out, "https://cdn.example/b.png")
	assert.Contains(t, out, "24 of 25 generations left today")
	_, prompt, _ := h.api.snapshot()
	assert.Equal(t, "A lighthouse at dusk", prompt)

	out, err = h.run("gallery", "list", "--query", "LIGHTHOUSE")
	require.NoError(t, err)
	assert.Contains(t, out, "https://cdn.example/a.png")
	assert.Contains(t, out, "A lighthouse at dusk")

	out, err = h.run("projects", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "A lighthouse at dusk")
}

func TestGenerate_RefreshesExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.api.expireAccess()

	_, err := h.run("generate", "a cat")
	require.NoError(t, err)
	refreshes, _, _ := h.api.snapshot()
	assert.Equal(t, 1, refreshes)

	// The rotated pair was stored, so the next call needs no refresh.
	_, err = h.run("usage")
	require.NoError(t, err)
	refreshes, _, _ = h.api.snapshot()
	assert.Equal(t, 1, refreshes)
}

func TestGenerate_RateLimitedExplainsLimit(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.api.setRateLimited(true)

	_, err := h.run("generate", "a cat")
	require.Error(t, err)
	assert.Equal(t, "Rate limit exceeded. Please try again later. (limit 10 per minute)", err.Error())

	out, err := h.run("gallery", "recent")
	require.NoError(t, err)
	assert.NotContains(t, out, "cdn.example")
}

func TestUsage(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("usage")
	require.NoError(t, err)
	assert.Contains(t, out, "free (5 images/month)")
	assert.Contains(t, out, "3/25 used, 22 remaining")
}

func TestVary_SendsImageAndRecords(t *testing.T) {
	h := newHarness(t)
	h.login()

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o600))

	out, err := h.run("vary", path, "--size", "512x512", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "https://cdn.example/v.png")
	assert.NotContains(t, out, "generations left today")
	_, _, form := h.api.snapshot()
	assert.Equal(t, map[string]string{"size": "512x512", "n": "2"}, form)

	out, err = h.run("gallery", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Variation of cat.png")
}

func TestGalleryLikeSaveAndDelete(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("generate", "a cat")
	require.NoError(t, err)

	cfg := h.cfg
	a, err := openApp(&cfg)
	require.NoError(t, err)
	images, err := a.cache.ListImages(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.Len(t, images, 2)
	id := images[0].ID

	out, err := h.run("gallery", "like", id)
	require.NoError(t, err)
	assert.Contains(t, out, "liked "+id+" (1 likes)")

	out, err = h.run("saved", "toggle", id)
	require.NoError(t, err)
	assert.Contains(t, out, "saved "+id)

	out, err = h.run("saved", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = h.run("gallery", "delete", id)
	require.NoError(t, err)
	out, err = h.run("gallery", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, id)

	_, err = h.run("gallery", "like", id)
	assert.Error(t, err)
}

func TestLogout_ForgetsSession(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("logout")
	require.NoError(t, err)

	_, err = h.run("usage")
	assert.ErrorIs(t, err, errNotLoggedIn)
}
