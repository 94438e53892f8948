package gallery

import (
	"context"
	"errors"
	"fmt"
)

// RecordGeneration mirrors one successful generation locally the way the
// dashboard does: every url becomes a StoredImage and the conversation is
// upserted as a project. An empty projectID starts a new project.
//
// Each write takes the lock on its own. A failure partway through leaves the
// images saved so far without their project; the cache is last-write-wins
// and never reconciled, so that partial state is kept rather than undone.
func (c *Cache) RecordGeneration(ctx context.Context, projectID, prompt, aspectRatio string, urls []string) (*Project, error) {
	now := c.now().UTC()
	ms := now.UnixMilli()

	for i, u := range urls {
		err := c.SaveImage(ctx, StoredImage{
			ID:          fmt.Sprintf("gen_%d_%d", ms, i),
			Src:         u,
			Prompt:      prompt,
			AspectRatio: aspectRatio,
			Timestamp:   now,
			Style:       "AI Generated",
			Author:      "You",
		})
		if err != nil {
			return nil, err
		}
	}

	if len(urls) == 0 {
		return nil, nil
	}

	if projectID == "" {
		projectID = fmt.Sprintf("project_%d", ms)
	}

	turn := []Message{
		{ID: fmt.Sprintf("msg_%d_prompt", ms), Role: "user", Content: prompt, Timestamp: now},
		{ID: fmt.Sprintf("msg_%d_response", ms), Role: "assistant", Images: urls, Timestamp: now},
	}

	existing, err := c.GetProject(ctx, projectID)
	switch {
	case err == nil:
		err = c.SaveProject(ctx, Project{
			ID:         projectID,
			ImageCount: existing.ImageCount + len(urls),
			Messages:   append(existing.Messages, turn...),
		})
	case errors.Is(err, ErrNotFound):
		err = c.SaveProject(ctx, Project{
			ID:             projectID,
			Title:          ExtractTitleFromPrompt(prompt),
			CreatedAt:      now,
			UpdatedAt:      now,
			ImageCount:     len(urls),
			ThumbnailImage: urls[0],
			Color:          RandomColor(),
			Messages:       turn,
		})
	}
	if err != nil {
		return nil, err
	}
	return c.GetProject(ctx, projectID)
}
