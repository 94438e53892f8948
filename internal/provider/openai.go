package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/visionfy/visionfy/internal/config"
	"github.com/visionfy/visionfy/internal/metrics"
)

const maxAssetBytes = 32 << 20

// OpenAIClient calls the OpenAI Images REST API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxAsset   int64
}

func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxAsset:   maxAssetBytes,
	}
}

type imagesResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	payload := map[string]any{
		"model":   ModelGenerate,
		"prompt":  req.Prompt,
		"n":       req.N,
		"size":    req.Size,
		"quality": req.Quality,
		"style":   req.Style,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, "generate", "/v1/images/generations", "application/json", bytes.NewReader(body))
}

func (c *OpenAIClient) Vary(ctx context.Context, req VariationRequest) ([]string, error) {
	body, contentType, err := buildMultipart(map[string]string{
		"model":           ModelEdit,
		"n":               strconv.Itoa(req.N),
		"size":            req.Size,
		"response_format": "url",
	}, []filePart{{field: "image", name: orDefault(req.ImageName, "image.png"), data: req.Image}})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "variation", "/v1/images/variations", contentType, body)
}

func (c *OpenAIClient) Edit(ctx context.Context, req EditRequest) ([]string, error) {
	files := []filePart{{field: "image", name: orDefault(req.ImageName, "image.png"), data: req.Image}}
	if len(req.Mask) > 0 {
		files = append(files, filePart{field: "mask", name: "mask.png", data: req.Mask})
	}
	body, contentType, err := buildMultipart(map[string]string{
		"model":           ModelEdit,
		"prompt":          req.Prompt,
		"n":               strconv.Itoa(req.N),
		"size":            req.Size,
		"response_format": "url",
	}, files)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "edit", "/v1/images/edits", contentType, body)
}

// Fetch downloads a generated image from its temporary URL.
func (c *OpenAIClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download image: status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAsset+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > c.maxAsset {
		return nil, fmt.Errorf("download image: body exceeds %d bytes", c.maxAsset)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download image: empty body")
	}
	return data, nil
}

func (c *OpenAIClient) do(ctx context.Context, operation, endpoint, contentType string, body io.Reader) ([]string, error) {
	fullURL := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("post openai: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(rawBody, &apiErr)
		slog.Error("openai request failed",
			"operation", operation,
			"status", resp.StatusCode,
			"message", apiErr.Error.Message,
			"body", truncateBody(rawBody),
		)
		return nil, fmt.Errorf("openai error: status=%d type=%s message=%s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}

	var out imagesResponse
	if err := json.Unmarshal(rawBody, &out); err != nil {
		return nil, fmt.Errorf("decode images response: %w (body=%s)", err, truncateBody(rawBody))
	}

	urls := make([]string, 0, len(out.Data))
	for _, d := range out.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("openai returned no image urls")
	}
	return urls, nil
}

type filePart struct {
	field string
	name  string
	data  []byte
}

func buildMultipart(fields map[string]string, files []filePart) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", f.field, err)
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, "", fmt.Errorf("write form file %s: %w", f.field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func truncateBody(b []byte) string {
	const maxLen = 512
	s := string(b)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
