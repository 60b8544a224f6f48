package updater

import (
	"context"
	"fmt"
	"strings"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/magpiebot/magpie/internal/version"
)

const (
	repoOwner = "magpiebot"
	repoName  = "magpie"
)

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, err
	}
	return selfupdate.NewUpdater(selfupdate.Config{Source: source})
}

func current() string {
	return strings.TrimPrefix(version.Version, "v")
}

// Check looks up the newest published release. The bool reports whether
// it is newer than the running build; a nil release means none exist.
func Check(ctx context.Context) (*selfupdate.Release, bool, error) {
	up, err := newUpdater()
	if err != nil {
		return nil, false, err
	}

	latest, found, err := up.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	if latest.LessOrEqual(current()) {
		return latest, false, nil
	}
	return latest, true, nil
}

// Update replaces the running binary with the newest release.
func Update(ctx context.Context) error {
	up, err := newUpdater()
	if err != nil {
		return err
	}

	latest, found, err := up.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return fmt.Errorf("no releases found for %s/%s", repoOwner, repoName)
	}

	if latest.LessOrEqual(current()) {
		fmt.Printf("Already up to date (v%s)\n", current())
		return nil
	}

	fmt.Printf("Updating from v%s to %s...\n", current(), latest.Version())

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate the running binary: %w", err)
	}
	if err := up.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Printf("Updated to %s\n", latest.Version())
	return nil
}
