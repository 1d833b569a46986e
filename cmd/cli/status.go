package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sevigo/codesentry/internal/wire"
)

var outputJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the ingest status of every repository known to CodeSentry",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		application, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		repos, err := application.Store.ListRepositories(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve repositories: %w", err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(repos)
		}

		if len(repos) == 0 {
			slog.Info("no repositories are currently tracked by codesentry")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tORIGIN\tSTATUS\tLANGUAGE\tFILES\tSYMBOLS")
		for _, repo := range repos {
			origin := repo.OriginURL
			if origin == "" {
				origin = repo.ArchivePath
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
				repo.ID, origin, repo.Status, repo.PrimaryLanguage, repo.FileCount, repo.SymbolCount)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "output status as JSON")
}
