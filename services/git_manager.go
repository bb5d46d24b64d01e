package services

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"stack-keeper/internal/config"
	"stack-keeper/internal/logger"
	"stack-keeper/internal/models"
)

// repoCell is the independently lockable state cell of one managed checkout.
type repoCell struct {
	spec  models.RepoSpec
	mutex sync.Mutex
	state models.RepoState
}

/**
 * GitManager tracks branch, dirty and ahead/behind state per repository
 * @description
 * - Refresh runs a remote-tracking fetch with a bounded timeout; a failed
 *   fetch degrades to "stale but last-known-good" instead of blanking state
 * - Update is fast-forward only: it either extends history or refuses
 */
type GitManager struct {
	cfg   *config.AppConfig
	repos map[string]*repoCell
	order []string
}

func NewGitManager(stack *config.StackSpec, cfg *config.AppConfig) *GitManager {
	gm := &GitManager{
		cfg:   cfg,
		repos: make(map[string]*repoCell),
	}
	for _, spec := range stack.Repos {
		if spec.Remote == "" {
			spec.Remote = "origin"
		}
		gm.repos[spec.Name] = &repoCell{
			spec: spec,
			state: models.RepoState{
				Name: spec.Name,
				Path: spec.Path,
			},
		}
		gm.order = append(gm.order, spec.Name)
	}
	return gm
}

func (gm *GitManager) HasRepo(name string) bool {
	return gm.repos[name] != nil
}

// git runs one git command inside the repo and returns trimmed stdout.
func (gm *GitManager) git(ctx context.Context, repo string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repo}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Status returns the cached state without triggering a refresh.
func (gm *GitManager) Status(name string) (models.RepoState, error) {
	cell := gm.repos[name]
	if cell == nil {
		return models.RepoState{}, fmt.Errorf("repo [%s] isn't exist", name)
	}
	cell.mutex.Lock()
	defer cell.mutex.Unlock()
	return cell.state, nil
}

// StatusAll returns cached states in declaration order.
func (gm *GitManager) StatusAll() []models.RepoState {
	out := make([]models.RepoState, 0, len(gm.order))
	for _, name := range gm.order {
		cell := gm.repos[name]
		cell.mutex.Lock()
		out = append(out, cell.state)
		cell.mutex.Unlock()
	}
	return out
}

/**
 * Refresh one repository's cached state
 * @param {string} name - Repo key from the manifest
 * @returns {models.RepoState} The refreshed (or stale-with-error) state
 * @description
 * - Fetch failure keeps the previous branch/dirty/ahead-behind data and only
 *   stamps LastError + RefreshedAt
 */
func (gm *GitManager) Refresh(ctx context.Context, name string) (models.RepoState, error) {
	cell := gm.repos[name]
	if cell == nil {
		return models.RepoState{}, fmt.Errorf("repo [%s] isn't exist", name)
	}
	cell.mutex.Lock()
	defer cell.mutex.Unlock()
	return gm.refreshLocked(ctx, cell), nil
}

// RefreshAll is the body of the periodic background refresh.
func (gm *GitManager) RefreshAll(ctx context.Context) {
	for _, name := range gm.order {
		cell := gm.repos[name]
		cell.mutex.Lock()
		state := gm.refreshLocked(ctx, cell)
		cell.mutex.Unlock()
		if state.LastError != "" {
			logger.Warnf("Git refresh of '%s' failed: %s", name, state.LastError)
		}
	}
}

func (gm *GitManager) refreshLocked(ctx context.Context, cell *repoCell) models.RepoState {
	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(gm.cfg.Timeout.Git)*time.Second)
	defer cancel()

	if _, err := gm.git(fetchCtx, cell.spec.Path, "fetch", "--quiet", cell.spec.Remote); err != nil {
		cell.state.LastError = err.Error()
		cell.state.RefreshedAt = time.Now()
		return cell.state
	}

	cell.state = gm.collectLocked(ctx, cell)
	return cell.state
}

// collectLocked recomputes branch/dirty/upstream/ahead-behind from the local
// repository, without network access.
func (gm *GitManager) collectLocked(ctx context.Context, cell *repoCell) models.RepoState {
	state := models.RepoState{
		Name:        cell.spec.Name,
		Path:        cell.spec.Path,
		RefreshedAt: time.Now(),
	}

	branch, err := gm.git(ctx, cell.spec.Path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		state.LastError = err.Error()
		state.Branch = cell.state.Branch
		return state
	}
	if branch == "HEAD" {
		state.Detached = true
		state.Branch = "detached"
	} else {
		state.Branch = branch
	}

	if commit, err := gm.git(ctx, cell.spec.Path, "rev-parse", "HEAD"); err == nil {
		state.Commit = commit
	}

	porcelain, err := gm.git(ctx, cell.spec.Path, "status", "--porcelain")
	if err != nil {
		state.LastError = err.Error()
	}
	state.Dirty = porcelain != ""

	if !state.Detached {
		upstream, err := gm.git(ctx, cell.spec.Path, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
		if err == nil && upstream != "" {
			state.Upstream = upstream
			state.HasUpstream = true
			// Ahead/behind only exist relative to an upstream ref.
			if counts, err := gm.git(ctx, cell.spec.Path, "rev-list", "--left-right", "--count", "HEAD...@{upstream}"); err == nil {
				fields := strings.Fields(counts)
				if len(fields) == 2 {
					if ahead, err := strconv.Atoi(fields[0]); err == nil {
						state.Ahead = &ahead
					}
					if behind, err := strconv.Atoi(fields[1]); err == nil {
						state.Behind = &behind
					}
				}
			}
		}
	}
	return state
}

/**
 * Fast-forward-only update
 * @param {string} name - Repo key from the manifest
 * @returns {models.UpdateOutcome} One of updated, skipped_dirty/detached/no_upstream, or failed
 * @description
 * - Decision table, in order: dirty, detached, no upstream, then the
 *   fast-forward attempt; diverged history is reported, never merged
 * - OldCommit == NewCommit means the branch was already up to date
 */
func (gm *GitManager) Update(ctx context.Context, name string) (models.UpdateOutcome, error) {
	cell := gm.repos[name]
	if cell == nil {
		return models.UpdateOutcome{}, fmt.Errorf("repo [%s] isn't exist", name)
	}
	cell.mutex.Lock()
	defer cell.mutex.Unlock()

	outcome := models.UpdateOutcome{Repo: name}

	state := gm.collectLocked(ctx, cell)
	switch {
	case state.Dirty:
		outcome.Kind = models.UpdateSkippedDirty
	case state.Detached:
		outcome.Kind = models.UpdateSkippedDetached
	case !state.HasUpstream:
		outcome.Kind = models.UpdateSkippedNoUpstream
	default:
		outcome = gm.pullLocked(ctx, cell, state)
	}

	// Recompute the cache so ahead/behind reflect the new HEAD.
	cell.state = gm.refreshLocked(ctx, cell)
	return outcome, nil
}

func (gm *GitManager) pullLocked(ctx context.Context, cell *repoCell, state models.RepoState) models.UpdateOutcome {
	outcome := models.UpdateOutcome{Repo: cell.spec.Name}

	netCtx, cancel := context.WithTimeout(ctx, time.Duration(gm.cfg.Timeout.Git)*time.Second)
	defer cancel()

	if _, err := gm.git(netCtx, cell.spec.Path, "fetch", "--quiet", cell.spec.Remote); err != nil {
		outcome.Kind = models.UpdateFailed
		outcome.Reason = "fetch failed: " + err.Error()
		return outcome
	}

	old, err := gm.git(ctx, cell.spec.Path, "rev-parse", "HEAD")
	if err != nil {
		outcome.Kind = models.UpdateFailed
		outcome.Reason = err.Error()
		return outcome
	}

	if _, err := gm.git(ctx, cell.spec.Path, "merge", "--ff-only", "@{upstream}"); err != nil {
		outcome.Kind = models.UpdateFailed
		outcome.Reason = err.Error()
		return outcome
	}

	current, err := gm.git(ctx, cell.spec.Path, "rev-parse", "HEAD")
	if err != nil {
		outcome.Kind = models.UpdateFailed
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.Kind = models.UpdateApplied
	outcome.OldCommit = old
	outcome.NewCommit = current
	logger.Infof("Repo '%s' updated: %.8s -> %.8s", cell.spec.Name, old, current)
	return outcome
}
