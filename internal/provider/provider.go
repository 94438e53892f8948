package provider

import "context"

const (
	ModelGenerate = "dall-e-3"
	ModelEdit     = "dall-e-2"
)

// GenerateRequest is a text-to-image call.
type GenerateRequest struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
	N       int
}

// VariationRequest asks for variations of an uploaded image.
type VariationRequest struct {
	Image     []byte
	ImageName string
	Size      string
	N         int
}

// EditRequest asks for an edit of an uploaded image, optionally restricted by a mask.
type EditRequest struct {
	Image     []byte
	ImageName string
	Mask      []byte
	Prompt    string
	Size      string
	N         int
}

// Provider returns short-lived remote URLs for generated images.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
	Vary(ctx context.Context, req VariationRequest) ([]string, error)
	Edit(ctx context.Context, req EditRequest) ([]string, error)
}

// Fetcher downloads the bytes behind a provider URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
