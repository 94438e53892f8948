package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/visionfy/visionfy/internal/gallery"
)

func newGalleryCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Browse images generated on this machine",
	}

	var query, sortBy string
	list := &cobra.Command{
		Use:   "list",
		Short: "List images, optionally filtered by prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := gallery.ParseSortOrder(sortBy)
			if err != nil {
				return err
			}
			images, err := get().cache.SearchImages(cmd.Context(), query, order)
			if err != nil {
				return err
			}
			printImages(cmd, images)
			return nil
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive prompt filter")
	list.Flags().StringVar(&sortBy, "sort", "newest", "newest, oldest or liked")

	var n int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent images",
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := get().cache.ListRecent(cmd.Context(), n)
			if err != nil {
				return err
			}
			printImages(cmd, images)
			return nil
		},
	}
	recent.Flags().IntVarP(&n, "count", "n", gallery.DefaultRecent, "How many images")

	like := &cobra.Command{
		Use:   "like ID",
		Short: "Like or unlike an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := get().cache.ToggleLike(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state := "unliked"
			if img.IsLiked {
				state = "liked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d likes)\n", state, img.ID, img.Likes)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an image from the local gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().cache.DeleteImage(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, recent, like, del)
	return cmd
}

func newProjectsCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage local generation projects",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := get().cache.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tIMAGES\tUPDATED")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Title, p.ImageCount, stamp(p.UpdatedAt))
			}
			return w.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a project's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := get().cache.GetProject(cmd.Context(), args[0])
			if errors.Is(err, gallery.ErrNotFound) {
				return fmt.Errorf("project %s not found", args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%d images, created %s\n\n", p.Title, p.ImageCount, stamp(p.CreatedAt))
			for _, m := range p.Messages {
				if m.Content != "" {
					fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
				}
				for _, u := range m.Images {
					fmt.Fprintf(out, "[%s] %s\n", m.Role, u)
				}
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().cache.DeleteProject(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func newSavedCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved favorites",
	}

	var query, sortBy string
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved images",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := gallery.ParseSortOrder(sortBy)
			if err != nil {
				return err
			}
			saved, err := get().cache.ListSaved(cmd.Context(), query, order)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSAVED\tPROMPT\tURL")
			for _, s := range saved {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, stamp(s.CreatedAt), s.Prompt, s.Src)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive prompt filter")
	list.Flags().StringVar(&sortBy, "sort", "newest", "newest or oldest")

	toggle := &cobra.Command{
		Use:   "toggle IMAGE_ID",
		Short: "Save a gallery image, or unsave it if already saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			images, err := a.cache.ListImages(ctx)
			if err != nil {
				return err
			}
			for _, img := range images {
				if img.ID != args[0] {
					continue
				}
				saved, err := a.cache.ToggleSave(ctx, gallery.SavedImage{
					ID: img.ID, Src: img.Src, Prompt: img.Prompt, CreatedAt: time.Now().UTC(),
				})
				if err != nil {
					return err
				}
				if saved {
					fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", img.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s from saved\n", img.ID)
				}
				return nil
			}
			return fmt.Errorf("image %s not found in gallery", args[0])
		},
	}

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a saved image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().cache.RemoveSaved(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, toggle, remove)
	return cmd
}

func printImages(cmd *cobra.Command, images []gallery.StoredImage) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tLIKES\tPROMPT\tURL")
	for _, img := range images {
		heart := " "
		if img.IsLiked {
			heart = "♥"
		}
		fmt.Fprintf(w, "%s\t%s\t%s%d\t%s\t%s\n", img.ID, stamp(img.Timestamp), heart, img.Likes, img.Prompt, img.Src)
	}
	w.Flush()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
