package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sevigo/codesentry/internal/app"
	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/wire"
)

var (
	submitURL    string
	submitBranch string
	submitWait   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a remote repository for ingestion",
	Long:  `Creates a pending Repository record for --url/--branch and dispatches its ingest task.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		application, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		repo := core.Repository{
			Source:    core.SourceRemote,
			OriginURL: submitURL,
			Branch:    submitBranch,
			Status:    core.StatusPending,
		}
		if err := application.Store.CreateRepository(ctx, &repo); err != nil {
			return fmt.Errorf("failed to create repository: %w", err)
		}

		if err := application.Dispatcher.Dispatch(ctx, core.Task{RepoID: repo.ID, Kind: core.TaskIngest}); err != nil {
			return fmt.Errorf("failed to dispatch ingest task: %w", err)
		}

		slog.Info("ingest dispatched", "repo_id", repo.ID, "origin_url", submitURL, "branch", submitBranch)

		if submitWait {
			return waitForIngest(ctx, application, repo.ID)
		}
		return nil
	},
}

// waitForIngest polls the repository's status until it leaves the
// in-progress states, driving an indeterminate spinner since the pipeline
// reports no total-step count to bound a determinate bar against.
func waitForIngest(ctx context.Context, application *app.App, repoID int64) error {
	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(fmt.Sprintf("ingesting repo %d", repoID)),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		repo, err := application.Store.GetRepository(ctx, repoID)
		if err != nil {
			return fmt.Errorf("failed to poll repository status: %w", err)
		}
		if bar != nil {
			bar.Describe(fmt.Sprintf("repo %d: %s", repoID, repo.Status))
			_ = bar.Add(1)
		}
		switch repo.Status {
		case core.StatusCompleted:
			if bar != nil {
				_ = bar.Finish()
			}
			slog.Info("ingest completed", "repo_id", repoID, "files", repo.FileCount, "symbols", repo.SymbolCount)
			return nil
		case core.StatusFailed:
			if bar != nil {
				_ = bar.Finish()
			}
			return fmt.Errorf("ingest failed for repo %d", repoID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func init() {
	submitCmd.Flags().StringVarP(&submitURL, "url", "u", "", "remote repository URL to clone")
	submitCmd.Flags().StringVarP(&submitBranch, "branch", "b", "main", "branch to clone")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "block and show progress until the ingest completes or fails")
	_ = submitCmd.MarkFlagRequired("url")
}
