// Command precommit is a git pre-commit helper: it calls a running
// CodeSentry server's POST /quality-gate/:repo/check and maps the result to
// the exit codes of spec.md §6 (0 pass, 1 gate failed, 2 configuration
// missing, 3 network error).
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/sevigo/codesentry/internal/core"
)

const (
	exitPass          = 0
	exitGateFailed    = 1
	exitConfigMissing = 2
	exitNetworkError  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	serverURL := flag.String("server", os.Getenv("CODESENTRY_SERVER_URL"), "CodeSentry server base URL")
	repoID := flag.Int64("repo", 0, "repository id to gate-check")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	if *serverURL == "" || *repoID == 0 {
		fmt.Fprintln(os.Stderr, "precommit: --server and --repo are required (or CODESENTRY_SERVER_URL)")
		return exitConfigMissing
	}

	client := &http.Client{Timeout: *timeout}
	url := fmt.Sprintf("%s/quality-gate/%d/check", *serverURL, *repoID)
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "precommit: request failed: %v\n", err)
		return exitNetworkError
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		fmt.Fprintf(os.Stderr, "precommit: server error: %s\n", resp.Status)
		return exitNetworkError
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "precommit: request rejected: %s\n", resp.Status)
		return exitConfigMissing
	}

	var result core.GateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "precommit: decode response: %v\n", err)
		return exitNetworkError
	}

	for _, c := range result.Checks {
		status := "ok"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s\n", status, c.Message)
	}
	fmt.Println(result.Summary)

	if !result.Passed {
		return exitGateFailed
	}
	return exitPass
}
