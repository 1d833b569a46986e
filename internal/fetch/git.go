// Package fetch implements the SourceFetcher capability: turning a pending
// Repository (remote URL or uploaded archive) into a rooted tree on local
// scratch disk.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gogithttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/sevigo/codesentry/internal/core"
)

// GitFetcher performs a shallow clone of a requested branch using go-git.
type GitFetcher struct {
	ScratchRoot string
	Logger      *slog.Logger
	// AuthToken, when set, authenticates the clone as an OAuth2 bearer
	// token (a GitHub/GitLab personal access token) so private remotes
	// can be ingested. Empty means an anonymous clone.
	AuthToken string
}

// NewGitFetcher returns a GitFetcher rooted at scratchRoot, authenticating
// clones with authToken when non-empty.
func NewGitFetcher(scratchRoot, authToken string, logger *slog.Logger) *GitFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitFetcher{ScratchRoot: scratchRoot, Logger: logger, AuthToken: authToken}
}

var _ core.SourceFetcher = (*GitFetcher)(nil)

// Fetch clones repo.OriginURL at depth 1, checking out repo.Branch. The
// returned cleanup removes the scratch directory; callers must invoke it
// once the ingest pipeline no longer needs the tree.
func (f *GitFetcher) Fetch(ctx context.Context, repo core.Repository) (string, func(), error) {
	if err := os.MkdirAll(f.ScratchRoot, 0o750); err != nil {
		return "", nil, core.NewKindError(core.ErrKindResource, fmt.Errorf("failed to create scratch root: %w", err))
	}

	dir := filepath.Join(f.ScratchRoot, "codesentry-repo-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", nil, core.NewKindError(core.ErrKindResource, fmt.Errorf("failed to create scratch dir: %w", err))
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			f.Logger.Error("failed to remove scratch dir", "path", dir, "error", rmErr)
		}
	}

	f.Logger.InfoContext(ctx, "cloning repository", "url", repo.OriginURL, "branch", repo.Branch, "path", dir)

	auth, err := f.authMethod()
	if err != nil {
		cleanup()
		return "", nil, core.NewKindError(core.ErrKindValidation, fmt.Errorf("failed to build clone credentials: %w", err))
	}

	opts := &git.CloneOptions{
		URL:           repo.OriginURL,
		Auth:          auth,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(repo.Branch),
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		cleanup()
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, git.ErrBranchNotFound) {
			return "", nil, core.NewKindError(core.ErrKindValidation, fmt.Errorf("%w: %s", core.ErrBranchNotFound, repo.Branch))
		}
		return "", nil, core.NewKindError(core.ErrKindTransient, fmt.Errorf("failed to clone %s: %w", repo.OriginURL, err))
	}

	f.Logger.InfoContext(ctx, "repository cloned", "path", dir)
	return dir, cleanup, nil
}

// authMethod builds a go-git BasicAuth credential from f.AuthToken via an
// oauth2 static token source, the same token-to-credential shape the
// teacher uses for its GitHub installation tokens (internal/github/auth.go)
// minus the App/JWT minting this fetcher has no use for. Returns nil when
// no token is configured, signalling an anonymous clone.
func (f *GitFetcher) authMethod() (transport.AuthMethod, error) {
	if f.AuthToken == "" {
		return nil, nil
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: f.AuthToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return &gogithttp.BasicAuth{Username: "x-access-token", Password: tok.AccessToken}, nil
}
