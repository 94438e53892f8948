package gallery

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const untitledProject = "Untitled Project"

// ProjectColors are the card background classes a new project picks from.
var ProjectColors = []string{
	"bg-purple-600",
	"bg-gray-600",
	"bg-emerald-700",
	"bg-amber-700",
	"bg-blue-700",
	"bg-rose-700",
	"bg-indigo-700",
	"bg-teal-700",
}

// Message is one turn of a generation conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Project struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ImageCount     int       `json:"imageCount"`
	ThumbnailImage string    `json:"thumbnailImage"`
	Color          string    `json:"color"`
	Messages       []Message `json:"messages,omitempty"`
}

// merge overlays the set fields of p onto existing.
func (existing Project) merge(p Project) Project {
	out := existing
	if p.Title != "" {
		out.Title = p.Title
	}
	if p.Description != "" {
		out.Description = p.Description
	}
	if !p.CreatedAt.IsZero() {
		out.CreatedAt = p.CreatedAt
	}
	if p.ImageCount != 0 {
		out.ImageCount = p.ImageCount
	}
	if p.ThumbnailImage != "" {
		out.ThumbnailImage = p.ThumbnailImage
	}
	if p.Color != "" {
		out.Color = p.Color
	}
	if p.Messages != nil {
		out.Messages = p.Messages
	}
	return out
}

// SaveProject upserts by id. An existing project keeps its position, takes
// the set fields of p and gets UpdatedAt bumped; a new one is prepended.
func (c *Cache) SaveProject(ctx context.Context, p Project) error {
	return c.mutate(EventProjectsUpdated, func() error {
		projects, err := load[Project](ctx, c.storage, KeyProjects)
		if err != nil {
			return err
		}

		if i := indexOf(projects, func(x Project) bool { return x.ID == p.ID }); i >= 0 {
			merged := projects[i].merge(p)
			merged.UpdatedAt = c.now().UTC()
			projects[i] = merged
		} else {
			projects = append([]Project{p}, projects...)
		}
		return store(ctx, c.storage, KeyProjects, projects)
	})
}

func (c *Cache) GetProject(ctx context.Context, id string) (*Project, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(projects, func(p Project) bool { return p.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	return &projects[i], nil
}

func (c *Cache) ListProjects(ctx context.Context) ([]Project, error) {
	return load[Project](ctx, c.storage, KeyProjects)
}

func (c *Cache) DeleteProject(ctx context.Context, id string) error {
	return c.mutate(EventProjectsUpdated, func() error {
		projects, err := load[Project](ctx, c.storage, KeyProjects)
		if err != nil {
			return err
		}
		kept := projects[:0]
		for _, p := range projects {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		return store(ctx, c.storage, KeyProjects, kept)
	})
}

func RandomColor() string {
	return ProjectColors[rand.IntN(len(ProjectColors))]
}

// ExtractTitleFromPrompt derives a project title from its first prompt:
// four words, five when four make a short title, cut at 30 characters.
func ExtractTitleFromPrompt(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return untitledProject
	}

	words := strings.Split(prompt, " ")
	title := strings.Join(words[:min(4, len(words))], " ")

	if utf8.RuneCountInString(title) < 20 && len(words) > 4 {
		title = strings.Join(words[:5], " ")
	}

	if runes := []rune(title); len(runes) > 30 {
		title = strings.TrimSpace(string(runes[:30])) + "..."
	} else if len(words) > 5 {
		title += "..."
	}

	first, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(first)) + title[size:]
}
