package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/visionfy/visionfy/internal/api"
	"github.com/visionfy/visionfy/internal/auth"
	"github.com/visionfy/visionfy/internal/history"
	"github.com/visionfy/visionfy/internal/metrics"
	"github.com/visionfy/visionfy/internal/provider"
	"github.com/visionfy/visionfy/internal/quota"
	"github.com/visionfy/visionfy/internal/ratelimit"
)

const (
	maxUploadBytes = 25 << 20
	maxJSONBytes   = 64 << 10
	maxMemoryBytes = 8 << 20

	// Model names written to the analytics list.
	trackModelGenerate  = "dall-e"
	trackModelEdit      = "dall-e-edit"
	trackModelVariation = "dall-e-variation"
)

// QuotaConsumer charges one generation against a user's daily budget.
type QuotaConsumer interface {
	Consume(ctx context.Context, userID string) (quota.Result, error)
}

// Recorder is the write-only history sink.
type Recorder interface {
	Record(ctx context.Context, userID string, rec history.ImageRecord) error
	Track(ctx context.Context, userID, operation, model, prompt string, imageCount int) error
}

// Endpoint pairs a limiter with the per-window limit it enforces.
type Endpoint struct {
	Limiter ratelimit.Limiter
	Limit   int
}

type Endpoints struct {
	Generate  Endpoint
	Edit      Endpoint
	Variation Endpoint
}

type Handler struct {
	invoker   *Invoker
	quota     QuotaConsumer
	recorder  Recorder
	endpoints Endpoints
	validate  *validator.Validate
	now       func() time.Time
}

func NewHandler(invoker *Invoker, quota QuotaConsumer, recorder Recorder, endpoints Endpoints) *Handler {
	return &Handler{
		invoker:   invoker,
		quota:     quota,
		recorder:  recorder,
		endpoints: endpoints,
		validate:  validator.New(),
		now:       time.Now,
	}
}

type GenerateOptions struct {
	Size    string `json:"size" validate:"omitempty,oneof=1024x1024 1792x1024 1024x1792"`
	Quality string `json:"quality" validate:"omitempty,oneof=standard hd"`
	Style   string `json:"style" validate:"omitempty,oneof=vivid natural"`
	N       int    `json:"n"`
}

type GenerateRequest struct {
	Prompt  string          `json:"prompt" validate:"required,max=4000"`
	Options GenerateOptions `json:"options"`
}

type uploadForm struct {
	Size string `validate:"oneof=256x256 512x512 1024x1024"`
}

type Usage struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type Response struct {
	Images []string `json:"images"`
	Usage  *Usage   `json:"usage,omitempty"`
}

// Generate handles POST /api/v1/images/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, usage, ok := h.admit(w, r, "generate", h.endpoints.Generate)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	opts := Options{Size: req.Options.Size, Quality: req.Options.Quality, Style: req.Options.Style, Count: req.Options.N}
	urls, err := h.invoker.GenerateFromPrompt(r.Context(), req.Prompt, opts)
	if err != nil {
		h.fail(w, "generate", userID, err)
		return
	}

	h.record(r.Context(), userID, "generate", "gen", trackModelGenerate, provider.ModelGenerate, req.Prompt, urls, opts.normalize())
	metrics.GenerationsTotal.WithLabelValues("generate", "success").Inc()
	api.JSON(w, http.StatusOK, Response{Images: urls, Usage: usage})
}

// Edit handles POST /api/v1/images/edit (multipart: image, mask?, prompt, size, n).
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, usage, ok := h.admit(w, r, "edit", h.endpoints.Edit)
	if !ok {
		return
	}

	img, opts, err := h.parseUpload(w, r)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	prompt := r.FormValue("prompt")
	if prompt == "" {
		api.HandleError(w, api.NewValidationError(ErrPromptRequired.Error()))
		return
	}
	mask, err := readFormFile(r, "mask")
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid mask upload"))
		return
	}

	urls, err := h.invoker.GenerateEdit(r.Context(), img, prompt, mask, opts)
	if err != nil {
		h.fail(w, "edit", userID, err)
		return
	}

	h.record(r.Context(), userID, "edit", "edit", trackModelEdit, provider.ModelEdit, prompt, urls, opts.normalize())
	metrics.GenerationsTotal.WithLabelValues("edit", "success").Inc()
	api.JSON(w, http.StatusOK, Response{Images: urls, Usage: usage})
}

// Variations handles POST /api/v1/images/variations (multipart: image, size, n).
func (h *Handler) Variations(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.admit(w, r, "variation", h.endpoints.Variation)
	if !ok {
		return
	}

	img, opts, err := h.parseUpload(w, r)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	urls, err := h.invoker.GenerateVariations(r.Context(), img, opts)
	if err != nil {
		h.fail(w, "variation", userID, err)
		return
	}

	h.record(r.Context(), userID, "variation", "var", trackModelVariation, provider.ModelEdit, "", urls, opts.normalize())
	metrics.GenerationsTotal.WithLabelValues("variation", "success").Inc()
	api.JSON(w, http.StatusOK, Response{Images: urls})
}

// admit runs auth, the endpoint rate limit and the daily quota, in that
// order. It writes the error response itself and reports ok=false when the
// request must stop.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, operation string, ep Endpoint) (string, *Usage, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil || claims.UserID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return "", nil, false
	}
	userID := claims.UserID

	rl, err := ep.Limiter.Check(r.Context(), userID, ep.Limit)
	if err != nil {
		slog.Error("rate limiter unavailable", "error", err, "operation", operation, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return "", nil, false
	}
	if !rl.Success {
		slog.Warn("rate limit exceeded", "operation", operation, "user_id", userID, "limit", rl.Limit)
		metrics.LimitRejectionsTotal.WithLabelValues("rate_" + operation).Inc()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
		api.HandleError(w, api.ErrRateLimited)
		return "", nil, false
	}

	q, err := h.quota.Consume(r.Context(), userID)
	if err != nil {
		slog.Error("quota store unavailable", "error", err, "operation", operation, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return "", nil, false
	}
	if !q.Allowed {
		slog.Warn("daily quota exceeded", "operation", operation, "user_id", userID)
		metrics.LimitRejectionsTotal.WithLabelValues("daily_quota").Inc()
		api.HandleError(w, api.ErrQuotaExceeded)
		return "", nil, false
	}

	return userID, &Usage{Limit: q.Limit, Remaining: q.Remaining}, true
}

func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) (Image, Options, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		return Image{}, Options{}, api.NewBadRequestError("invalid multipart form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return Image{}, Options{}, api.NewValidationError(ErrImageRequired.Error())
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		return Image{}, Options{}, api.NewValidationError(ErrImageRequired.Error())
	}

	size := r.FormValue("size")
	if size == "" {
		size = DefaultSize
	}
	if err := h.validate.Struct(uploadForm{Size: size}); err != nil {
		return Image{}, Options{}, api.NewValidationError(err.Error())
	}

	n := 1
	if raw := r.FormValue("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil {
			return Image{}, Options{}, api.NewValidationError("n must be an integer")
		}
	}

	return Image{Name: header.Filename, Data: data}, Options{Size: size, Count: n}, nil
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// fail maps invoker errors to responses. Provider and upload sub-causes stay in the log.
func (h *Handler) fail(w http.ResponseWriter, operation, userID string, err error) {
	switch {
	case errors.Is(err, ErrPromptRequired), errors.Is(err, ErrImageRequired):
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	case errors.Is(err, ErrUpload):
		metrics.GenerationsTotal.WithLabelValues(operation, "upload_error").Inc()
	default:
		metrics.GenerationsTotal.WithLabelValues(operation, "provider_error").Inc()
	}
	slog.Error("image generation failed", "error", err, "operation", operation, "user_id", userID)
	api.HandleError(w, api.ErrGenerationFailed)
}

// record writes history and analytics. Failures are logged and swallowed.
func (h *Handler) record(ctx context.Context, userID, operation, idPrefix, trackModel, model, prompt string, urls []string, opts Options) {
	if err := h.recorder.Track(ctx, userID, operation, trackModel, prompt, len(urls)); err != nil {
		slog.Error("tracking generation failed", "error", err, "user_id", userID)
	}

	now := h.now().UnixMilli()
	for i, u := range urls {
		rec := history.ImageRecord{
			ID:        fmt.Sprintf("%s_%d_%d", idPrefix, now, i),
			Prompt:    prompt,
			URL:       u,
			CreatedAt: now,
			Model:     model,
			Options:   opts,
		}
		if err := h.recorder.Record(ctx, userID, rec); err != nil {
			slog.Error("saving generated image failed", "error", err, "user_id", userID, "image_id", rec.ID)
		}
	}
	metrics.ImagesGeneratedTotal.WithLabelValues(operation).Add(float64(len(urls)))
}
