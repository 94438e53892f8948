package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visionfy/visionfy/internal/client"
)

var aspectRatios = map[string]string{
	"1024x1024": "1:1",
	"1792x1024": "16:9",
	"1024x1792": "9:16",
	"512x512":   "1:1",
	"256x256":   "1:1",
}

func newGenerateCommand(get func() *app) *cobra.Command {
	var opts client.GenerateOptions
	var project string

	cmd := &cobra.Command{
		Use:   "generate PROMPT...",
		Short: "Generate images from a text prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			prompt := strings.Join(args, " ")

			res, err := authed(ctx, a, func() (*client.Result, error) { return a.api.Generate(ctx, prompt, opts) })
			if err != nil {
				return explain(err)
			}
			return finish(cmd, a, project, prompt, opts.Size, res)
		},
	}
	cmd.Flags().StringVar(&opts.Size, "size", "", "1024x1024, 1792x1024 or 1024x1792")
	cmd.Flags().StringVar(&opts.Quality, "quality", "", "standard or hd")
	cmd.Flags().StringVar(&opts.Style, "style", "", "vivid or natural")
	cmd.Flags().IntVarP(&opts.N, "count", "n", 1, "Number of images, at most 4")
	cmd.Flags().StringVar(&project, "project", "", "Append to an existing local project")
	return cmd
}

func newEditCommand(get func() *app) *cobra.Command {
	var maskPath, size, project string
	var n int

	cmd := &cobra.Command{
		Use:   "edit IMAGE PROMPT...",
		Short: "Edit an image following a prompt, optionally within a mask",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			img, err := readUpload(args[0])
			if err != nil {
				return err
			}
			var mask *client.Upload
			if maskPath != "" {
				m, err := readUpload(maskPath)
				if err != nil {
					return err
				}
				mask = &m
			}
			prompt := strings.Join(args[1:], " ")

			res, err := authed(ctx, a, func() (*client.Result, error) { return a.api.Edit(ctx, img, mask, prompt, size, n) })
			if err != nil {
				return explain(err)
			}
			return finish(cmd, a, project, prompt, size, res)
		},
	}
	cmd.Flags().StringVar(&maskPath, "mask", "", "PNG mask; transparent areas are edited")
	cmd.Flags().StringVar(&size, "size", "", "256x256, 512x512 or 1024x1024")
	cmd.Flags().IntVarP(&n, "count", "n", 1, "Number of images, at most 4")
	cmd.Flags().StringVar(&project, "project", "", "Append to an existing local project")
	return cmd
}

func newVaryCommand(get func() *app) *cobra.Command {
	var size string
	var n int

	cmd := &cobra.Command{
		Use:   "vary IMAGE",
		Short: "Create variations of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			img, err := readUpload(args[0])
			if err != nil {
				return err
			}

			res, err := authed(ctx, a, func() (*client.Result, error) { return a.api.Vary(ctx, img, size, n) })
			if err != nil {
				return explain(err)
			}
			return finish(cmd, a, "", "Variation of "+img.Name, size, res)
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "256x256, 512x512 or 1024x1024")
	cmd.Flags().IntVarP(&n, "count", "n", 1, "Number of images, at most 4")
	return cmd
}

// finish mirrors the result into the local gallery and prints it.
func finish(cmd *cobra.Command, a *app, projectID, prompt, size string, res *client.Result) error {
	if size == "" {
		size = "1024x1024"
	}
	p, err := a.cache.RecordGeneration(cmd.Context(), projectID, prompt, aspectRatios[size], res.Images)
	if err != nil {
		return fmt.Errorf("saving to local gallery: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, u := range res.Images {
		fmt.Fprintln(out, u)
	}
	if p != nil {
		fmt.Fprintf(out, "Project: %s (%s)\n", p.Title, p.ID)
	}
	if res.Usage != nil {
		fmt.Fprintf(out, "%d of %d generations left today\n", res.Usage.Remaining, res.Usage.Limit)
	}
	return nil
}

func readUpload(path string) (client.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return client.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return client.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return client.Upload{Name: filepath.Base(path), Data: data}, nil
}

// explain adds the retry hint for limit rejections.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		return err
	}
	if apiErr.RateLimitLimit > 0 {
		return fmt.Errorf("%s (limit %d per minute)", apiErr.Message, apiErr.RateLimitLimit)
	}
	return errors.New(apiErr.Message)
}
