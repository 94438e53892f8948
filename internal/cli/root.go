package cli

import (
	"github.com/spf13/cobra"

	"github.com/visionfy/visionfy/internal/config"
	"github.com/visionfy/visionfy/internal/logger"
)

// NewRootCommand builds the visionfy command tree. The local store is opened
// lazily before each subcommand and closed after it.
func NewRootCommand(cfg *config.ClientConfig) *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:           "visionfy",
		Short:         "Generate images with Visionfy and manage your local gallery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(cfg.Log)
			var err error
			a, err = openApp(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	root.PersistentFlags().StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Visionfy API base URL")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the local gallery database")

	get := func() *app { return a }
	root.AddCommand(
		newRegisterCommand(get),
		newLoginCommand(get),
		newLogoutCommand(get),
		newUsageCommand(get),
		newGenerateCommand(get),
		newEditCommand(get),
		newVaryCommand(get),
		newGalleryCommand(get),
		newProjectsCommand(get),
		newSavedCommand(get),
	)
	return root
}
