package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionfy/visionfy/internal/auth"
	"github.com/visionfy/visionfy/internal/history"
	"github.com/visionfy/visionfy/internal/quota"
	"github.com/visionfy/visionfy/internal/ratelimit"
)

type testEnv struct {
	handler  *Handler
	provider *fakeProvider
	store    *fakeStore
	mr       *miniredis.Miniredis
	rdb      *redis.Client
}

func newTestEnv(t *testing.T, dailyCeiling int) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	now := time.Date(2024, 3, 14, 10, 0, 30, 0, time.UTC)
	clock := func() time.Time { return now }

	inv, p, _, s := newTestInvoker()
	endpoints := Endpoints{
		Generate:  Endpoint{Limiter: ratelimit.NewFixedWindow(rdb, "generate", time.Minute).WithClock(clock), Limit: 10},
		Edit:      Endpoint{Limiter: ratelimit.NewFixedWindow(rdb, "edit", time.Minute).WithClock(clock), Limit: 5},
		Variation: Endpoint{Limiter: ratelimit.NewFixedWindow(rdb, "variation", time.Minute).WithClock(clock), Limit: 5},
	}
	h := NewHandler(inv, quota.NewCounter(rdb, dailyCeiling).WithClock(clock), history.NewRecorder(rdb, nil), endpoints)
	h.now = clock

	return &testEnv{handler: h, provider: p, store: s, mr: mr, rdb: rdb}
}

func withUser(r *http.Request, userID string) *http.Request {
	ctx := auth.WithUserClaims(r.Context(), &auth.AccessClaims{UserID: userID})
	return r.WithContext(ctx)
}

func generateRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type envelope struct {
	Data  Response `json:"data"`
	Error string   `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t, 25)

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{
		"prompt":  "a cat in a hat",
		"options": map[string]any{"n": 2, "style": "natural"},
	}), "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body.Data.Images, 2)
	require.NotNil(t, body.Data.Usage)
	assert.Equal(t, 25, body.Data.Usage.Limit)
	assert.Equal(t, 24, body.Data.Usage.Remaining)
	assert.Equal(t, "natural", env.provider.lastGen.Style)

	ids, err := env.mr.List("user:user-1:images")
	require.NoError(t, err)
	assert.Equal(t, []string{"gen_1710410430000_1", "gen_1710410430000_0"}, ids)
	assert.True(t, env.mr.Exists("images:user-1:gen_1710410430000_0"))

	events, err := env.mr.List("analytics:generations")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"model":"dall-e"`)
}

func TestGenerate_CountClampedToFour(t *testing.T) {
	env := newTestEnv(t, 25)

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{
		"prompt": "a cat", "options": map[string]any{"n": 10},
	}), "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec).Data.Images, 4)
}

func TestGenerate_UnauthorizedTouchesNothing(t *testing.T) {
	env := newTestEnv(t, 25)

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, generateRequest(t, map[string]any{"prompt": "a cat"}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.mr.Keys(), "no quota or rate-limit keys may be created")
	assert.Zero(t, env.provider.Calls())
}

func TestGenerate_RateLimitedOnEleventhCall(t *testing.T) {
	env := newTestEnv(t, 25)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))
		require.Equal(t, http.StatusOK, rec.Code, "call %d", i+1)
	}

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 10, env.provider.Calls())

	// Rate-limited calls do not consume quota.
	used, err := env.mr.Get("quota:user-1:2024-03-14")
	require.NoError(t, err)
	assert.Equal(t, "10", used)
}

func TestGenerate_QuotaExceededSkipsProvider(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Daily generation limit reached. Please try again tomorrow.", decode(t, rec).Error)
	assert.Equal(t, 2, env.provider.Calls())
}

func TestGenerate_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, 25)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"prompt":`},
		{"missing prompt", `{"options":{"n":1}}`},
		{"bad size", `{"prompt":"a cat","options":{"size":"3x3"}}`},
		{"bad quality", `{"prompt":"a cat","options":{"quality":"ultra"}}`},
		{"oversized body", `{"prompt":"a cat","padding":"` + strings.Repeat("x", maxJSONBytes) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/images/generate", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			env.handler.Generate(rec, withUser(req, "user-1"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Zero(t, env.provider.Calls())
}

func TestGenerate_ProviderFailureIsGeneric(t *testing.T) {
	env := newTestEnv(t, 25)
	env.provider.err = errors.New("content_policy_violation: secret detail")

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to generate images", body.Error)
	assert.NotContains(t, body.Error, "secret")
}

func TestGenerate_UploadFailureIsGenerationFailure(t *testing.T) {
	env := newTestEnv(t, 25)
	env.store.failOn = "/0.png"

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.mr.Exists("user:user-1:images"))
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, string, history.ImageRecord) error {
	return errors.New("redis down")
}

func (failingRecorder) Track(context.Context, string, string, string, string, int) error {
	return errors.New("redis down")
}

func TestGenerate_HistoryFailureSwallowed(t *testing.T) {
	env := newTestEnv(t, 25)
	env.handler.recorder = failingRecorder{}

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec).Data.Images, 1)
}

func TestGenerate_StoreDownFailsClosed(t *testing.T) {
	env := newTestEnv(t, 25)
	env.mr.Close()

	rec := httptest.NewRecorder()
	env.handler.Generate(rec, withUser(generateRequest(t, map[string]any{"prompt": "a cat"}), "user-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, env.provider.Calls())
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for k, v := range files {
		part, err := mw.CreateFormFile(k, k+".png")
		require.NoError(t, err)
		_, err = part.Write(v)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestEdit_Success(t *testing.T) {
	env := newTestEnv(t, 25)

	req := multipartRequest(t, "/api/v1/images/edit",
		map[string]string{"prompt": "add a hat", "size": "512x512", "n": "2"},
		map[string][]byte{"image": []byte("img"), "mask": []byte("mask")})
	rec := httptest.NewRecorder()
	env.handler.Edit(rec, withUser(req, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body.Data.Images, 2)
	require.NotNil(t, body.Data.Usage)
	assert.Equal(t, []byte("mask"), env.provider.lastEdit.Mask)
	assert.Equal(t, "512x512", env.provider.lastEdit.Size)

	ids, err := env.mr.List("user:user-1:images")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ids[0], "edit_"))
}

func TestEdit_MissingImageOrPrompt(t *testing.T) {
	env := newTestEnv(t, 25)

	req := multipartRequest(t, "/api/v1/images/edit", map[string]string{"prompt": "add a hat"}, nil)
	rec := httptest.NewRecorder()
	env.handler.Edit(rec, withUser(req, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "image is required", decode(t, rec).Error)

	req = multipartRequest(t, "/api/v1/images/edit", nil, map[string][]byte{"image": []byte("img")})
	rec = httptest.NewRecorder()
	env.handler.Edit(rec, withUser(req, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "prompt is required", decode(t, rec).Error)

	assert.Zero(t, env.provider.Calls())
}

func TestEdit_RateLimitIsFivePerMinute(t *testing.T) {
	env := newTestEnv(t, 25)

	send := func() int {
		req := multipartRequest(t, "/api/v1/images/edit",
			map[string]string{"prompt": "p"}, map[string][]byte{"image": []byte("img")})
		rec := httptest.NewRecorder()
		env.handler.Edit(rec, withUser(req, "user-1"))
		return rec.Code
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send())
	}
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestVariations_NoUsageBlock(t *testing.T) {
	env := newTestEnv(t, 25)

	req := multipartRequest(t, "/api/v1/images/variations",
		map[string]string{"size": "256x256"}, map[string][]byte{"image": []byte("img")})
	rec := httptest.NewRecorder()
	env.handler.Variations(rec, withUser(req, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body.Data.Images, 1)
	assert.Nil(t, body.Data.Usage)
	assert.Equal(t, "256x256", env.provider.lastVary.Size)
}

func TestVariations_InvalidSize(t *testing.T) {
	env := newTestEnv(t, 25)

	req := multipartRequest(t, "/api/v1/images/variations",
		map[string]string{"size": "1792x1024"}, map[string][]byte{"image": []byte("img")})
	rec := httptest.NewRecorder()
	env.handler.Variations(rec, withUser(req, "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
