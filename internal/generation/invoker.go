package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/visionfy/visionfy/internal/provider"
	"github.com/visionfy/visionfy/internal/storage"
)

const (
	MaxCount = 4

	DefaultSize    = "1024x1024"
	DefaultQuality = "standard"
	DefaultStyle   = "vivid"
)

var (
	ErrPromptRequired = errors.New("prompt is required")
	ErrImageRequired  = errors.New("image is required")
	// ErrProvider wraps any failure reported by the upstream image API.
	ErrProvider = errors.New("image provider failed")
	// ErrUpload wraps a failure to copy a generated image into durable storage.
	ErrUpload = errors.New("storing generated image failed")
)

// Options tune a generation call. Zero values take the defaults.
type Options struct {
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
	Count   int    `json:"n,omitempty"`
}

func (o Options) normalize() Options {
	if o.Size == "" {
		o.Size = DefaultSize
	}
	if o.Quality == "" {
		o.Quality = DefaultQuality
	}
	if o.Style == "" {
		o.Style = DefaultStyle
	}
	o.Count = ClampCount(o.Count)
	return o
}

// ClampCount bounds n to [1, MaxCount].
func ClampCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}

// Image is an uploaded source image.
type Image struct {
	Name string
	Data []byte
}

// Invoker turns requests into durable asset URLs: one provider call, then
// every returned image is downloaded and copied to the blob store.
type Invoker struct {
	provider provider.Provider
	fetcher  provider.Fetcher
	store    storage.BlobStore
}

func NewInvoker(p provider.Provider, f provider.Fetcher, store storage.BlobStore) *Invoker {
	return &Invoker{provider: p, fetcher: f, store: store}
}

// GenerateFromPrompt runs text-to-image.
func (inv *Invoker) GenerateFromPrompt(ctx context.Context, prompt string, opts Options) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}
	opts = opts.normalize()

	urls, err := inv.provider.Generate(ctx, provider.GenerateRequest{
		Prompt:  prompt,
		Size:    opts.Size,
		Quality: opts.Quality,
		Style:   opts.Style,
		N:       opts.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return inv.persist(ctx, urls, opts.Count, storage.SlugHint("generated", prompt))
}

// GenerateVariations produces variations of img. Quality and style are ignored.
func (inv *Invoker) GenerateVariations(ctx context.Context, img Image, opts Options) ([]string, error) {
	if len(img.Data) == 0 {
		return nil, ErrImageRequired
	}
	opts = opts.normalize()

	urls, err := inv.provider.Vary(ctx, provider.VariationRequest{
		Image:     img.Data,
		ImageName: img.Name,
		Size:      opts.Size,
		N:         opts.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return inv.persist(ctx, urls, opts.Count, "variations")
}

// GenerateEdit edits img guided by prompt. mask may be nil.
func (inv *Invoker) GenerateEdit(ctx context.Context, img Image, prompt string, mask []byte, opts Options) ([]string, error) {
	if len(img.Data) == 0 {
		return nil, ErrImageRequired
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}
	opts = opts.normalize()

	urls, err := inv.provider.Edit(ctx, provider.EditRequest{
		Image:     img.Data,
		ImageName: img.Name,
		Mask:      mask,
		Prompt:    prompt,
		Size:      opts.Size,
		N:         opts.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return inv.persist(ctx, urls, opts.Count, storage.SlugHint("edits", prompt))
}

// persist copies the first n remote URLs into the blob store, keeping order.
// Extra URLs from the provider are dropped. Any single failure fails the
// batch; assets already stored are left in place.
func (inv *Invoker) persist(ctx context.Context, remote []string, n int, nameHint string) ([]string, error) {
	if len(remote) > n {
		slog.Warn("provider returned more images than requested", "requested", n, "returned", len(remote))
		remote = remote[:n]
	}
	stored := make([]string, len(remote))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range remote {
		g.Go(func() error {
			data, err := inv.fetcher.Fetch(gctx, u)
			if err != nil {
				return err
			}
			url, err := inv.store.Put(gctx, data, nameHint)
			if err != nil {
				return err
			}
			stored[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("persisting generated images", "error", err, "count", len(remote))
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return stored, nil
}
