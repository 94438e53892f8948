package gallery

import (
	"context"
	"sort"
	"time"
)

// DefaultRecent is how many images the dashboard's recent strip shows.
const DefaultRecent = 6

type StoredImage struct {
	ID          string    `json:"id"`
	Src         string    `json:"src"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspectRatio"`
	Timestamp   time.Time `json:"timestamp"`
	Style       string    `json:"style,omitempty"`
	Author      string    `json:"author,omitempty"`
	Likes       int       `json:"likes"`
	IsLiked     bool      `json:"isLiked"`
}

// SaveImage prepends img to the image list.
func (c *Cache) SaveImage(ctx context.Context, img StoredImage) error {
	return c.mutate(EventImagesUpdated, func() error {
		images, err := load[StoredImage](ctx, c.storage, KeyImages)
		if err != nil {
			return err
		}
		return store(ctx, c.storage, KeyImages, append([]StoredImage{img}, images...))
	})
}

// ListImages returns images most recently saved first.
func (c *Cache) ListImages(ctx context.Context) ([]StoredImage, error) {
	return load[StoredImage](ctx, c.storage, KeyImages)
}

// ListRecent returns at most n images; n <= 0 means DefaultRecent.
func (c *Cache) ListRecent(ctx context.Context, n int) ([]StoredImage, error) {
	if n <= 0 {
		n = DefaultRecent
	}
	images, err := c.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	if len(images) > n {
		images = images[:n]
	}
	return images, nil
}

// DeleteImage removes the image with id. Deleting an unknown id is a no-op
// that still notifies listeners.
func (c *Cache) DeleteImage(ctx context.Context, id string) error {
	return c.mutate(EventImagesUpdated, func() error {
		images, err := load[StoredImage](ctx, c.storage, KeyImages)
		if err != nil {
			return err
		}
		kept := images[:0]
		for _, img := range images {
			if img.ID != id {
				kept = append(kept, img)
			}
		}
		return store(ctx, c.storage, KeyImages, kept)
	})
}

// ToggleLike flips the liked flag and moves the like count by one. Unliking
// never takes the count below zero. Returns the updated image.
func (c *Cache) ToggleLike(ctx context.Context, id string) (StoredImage, error) {
	var updated StoredImage
	err := c.mutate(EventImagesUpdated, func() error {
		images, err := load[StoredImage](ctx, c.storage, KeyImages)
		if err != nil {
			return err
		}
		i := indexOf(images, func(img StoredImage) bool { return img.ID == id })
		if i < 0 {
			return ErrNotFound
		}

		img := &images[i]
		img.IsLiked = !img.IsLiked
		switch {
		case img.IsLiked:
			img.Likes++
		case img.Likes > 0:
			img.Likes--
		}
		updated = *img
		return store(ctx, c.storage, KeyImages, images)
	})
	if err != nil {
		return StoredImage{}, err
	}
	return updated, nil
}

// SearchImages filters by case-insensitive prompt substring and sorts.
// SortLiked puts liked images first and keeps stored order otherwise.
func (c *Cache) SearchImages(ctx context.Context, query string, order SortOrder) ([]StoredImage, error) {
	images, err := c.ListImages(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]StoredImage, 0, len(images))
	for _, img := range images {
		if matchesPrompt(img.Prompt, query) {
			out = append(out, img)
		}
	}

	if order == SortLiked {
		sort.SliceStable(out, func(i, j int) bool { return out[i].IsLiked && !out[j].IsLiked })
		return out, nil
	}
	sortByTime(out, order, func(img StoredImage) time.Time { return img.Timestamp })
	return out, nil
}
