package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string

	// Set on rate-limited responses.
	RateLimitLimit     int
	RateLimitRemaining int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func IsTooManyRequests(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Usage struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type GenerateOptions struct {
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
	N       int    `json:"n,omitempty"`
}

type Result struct {
	Images []string `json:"images"`
	Usage  *Usage   `json:"usage,omitempty"`
}

type UsageReport struct {
	Plan             string    `json:"plan"`
	DailyLimit       int       `json:"daily_limit"`
	Used             int       `json:"used"`
	Remaining        int       `json:"remaining"`
	ResetsAt         time.Time `json:"resets_at"`
	PlanMonthlyLimit int       `json:"plan_monthly_limit"`
}

// Upload is a file sent in a multipart request.
type Upload struct {
	Name string
	Data []byte
}

// Client talks to the Visionfy HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer access token for protected calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	var out TokenPair
	err := c.postJSON(ctx, "/api/v1/auth/register", map[string]string{"email": email, "password": password}, &out)
	return &out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var out TokenPair
	err := c.postJSON(ctx, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, &out)
	return &out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out TokenPair
	err := c.postJSON(ctx, "/api/v1/auth/refresh", map[string]string{"refresh_token": refreshToken}, &out)
	return &out, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/api/v1/auth/logout", nil, nil)
}

func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	body := struct {
		Prompt  string          `json:"prompt"`
		Options GenerateOptions `json:"options"`
	}{prompt, opts}

	var out Result
	if err := c.postJSON(ctx, "/api/v1/images/generate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Edit sends image (and an optional mask) with an edit prompt.
func (c *Client) Edit(ctx context.Context, image Upload, mask *Upload, prompt, size string, n int) (*Result, error) {
	fields := map[string]string{"prompt": prompt}
	files := map[string]Upload{"image": image}
	if mask != nil {
		files["mask"] = *mask
	}
	return c.postMultipart(ctx, "/api/v1/images/edit", withSizeAndCount(fields, size, n), files)
}

func (c *Client) Vary(ctx context.Context, image Upload, size string, n int) (*Result, error) {
	return c.postMultipart(ctx, "/api/v1/images/variations", withSizeAndCount(map[string]string{}, size, n), map[string]Upload{"image": image})
}

func (c *Client) Usage(ctx context.Context) (*UsageReport, error) {
	var out UsageReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/usage", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func withSizeAndCount(fields map[string]string, size string, n int) map[string]string {
	if size != "" {
		fields["size"] = size
	}
	if n > 0 {
		fields["n"] = strconv.Itoa(n)
	}
	return fields
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", body, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, files map[string]Upload) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	for field, f := range files {
		part, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Result
	if err := c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends the request and unwraps the {"data": ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Error}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.RateLimitLimit, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
		apiErr.RateLimitRemaining, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding %s data: %w", path, err)
	}
	return nil
}
