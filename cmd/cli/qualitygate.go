package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/wire"
)

var qualityGateCmd = &cobra.Command{
	Use:   "quality-gate [repo-id]",
	Short: "Run the quality gate for a repository and print its checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		repoID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid repo id %q: %w", args[0], err)
		}

		ctx := context.Background()
		application, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		result, err := application.Gate.Check(ctx, repoID, core.TriggeredManual, "", "", 0)
		if err != nil {
			return fmt.Errorf("quality gate check failed: %w", err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		}

		for _, c := range result.Checks {
			icon := color.GreenString("PASS")
			if !c.Passed {
				icon = color.RedString("FAIL")
			}
			fmt.Printf("[%s] %s\n", icon, c.Message)
		}
		fmt.Println(result.Summary)
		if !result.Passed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	qualityGateCmd.Flags().BoolVar(&outputJSON, "json", false, "output the gate result as JSON")
}
