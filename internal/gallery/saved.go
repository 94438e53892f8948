package gallery

import (
	"context"
	"time"
)

// SavedImage is a favorite. Favorites are independent of the image list:
// deleting a generated image does not unsave it.
type SavedImage struct {
	ID        string    `json:"id"`
	Src       string    `json:"src"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Cache) IsSaved(ctx context.Context, id string) (bool, error) {
	saved, err := load[SavedImage](ctx, c.storage, KeySaved)
	if err != nil {
		return false, err
	}
	return indexOf(saved, func(s SavedImage) bool { return s.ID == id }) >= 0, nil
}

// ToggleSave removes img when already saved, otherwise prepends it.
// Reports whether img is saved afterwards.
func (c *Cache) ToggleSave(ctx context.Context, img SavedImage) (bool, error) {
	nowSaved := true
	err := c.mutate(EventSavedUpdated, func() error {
		saved, err := load[SavedImage](ctx, c.storage, KeySaved)
		if err != nil {
			return err
		}
		if i := indexOf(saved, func(s SavedImage) bool { return s.ID == img.ID }); i >= 0 {
			saved = append(saved[:i], saved[i+1:]...)
			nowSaved = false
		} else {
			saved = append([]SavedImage{img}, saved...)
		}
		return store(ctx, c.storage, KeySaved, saved)
	})
	if err != nil {
		return false, err
	}
	return nowSaved, nil
}

func (c *Cache) RemoveSaved(ctx context.Context, id string) error {
	return c.mutate(EventSavedUpdated, func() error {
		saved, err := load[SavedImage](ctx, c.storage, KeySaved)
		if err != nil {
			return err
		}
		kept := saved[:0]
		for _, s := range saved {
			if s.ID != id {
				kept = append(kept, s)
			}
		}
		return store(ctx, c.storage, KeySaved, kept)
	})
}

// ListSaved filters favorites by prompt substring and sorts by CreatedAt.
// SortLiked has no meaning for favorites and falls back to newest.
func (c *Cache) ListSaved(ctx context.Context, query string, order SortOrder) ([]SavedImage, error) {
	saved, err := load[SavedImage](ctx, c.storage, KeySaved)
	if err != nil {
		return nil, err
	}

	out := make([]SavedImage, 0, len(saved))
	for _, s := range saved {
		if matchesPrompt(s.Prompt, query) {
			out = append(out, s)
		}
	}
	sortByTime(out, order, func(s SavedImage) time.Time { return s.CreatedAt })
	return out, nil
}
