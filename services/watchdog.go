package services

import (
	"io/fs"
	"path/filepath"
	"time"

	"stack-keeper/internal/config"
)

const defaultWatchDebounce = 2 * time.Second

// watchRule is the compiled watch configuration of one service.
type watchRule struct {
	service  string
	root     string
	globs    []string
	debounce time.Duration
}

/**
 * Watchdog polls watched file patterns and emits debounced restart triggers
 * @description
 * - Tracks the latest mtime across each rule's patterns; a change opens a
 *   debounce window and at most one trigger fires per change burst
 * - Prime and Poll are driven by a single loop goroutine and take no locks
 */
type Watchdog struct {
	rules        []watchRule
	lastSeen     []time.Time
	pendingSince []time.Time
}

func NewWatchdog(stack *config.StackSpec) *Watchdog {
	w := &Watchdog{}
	for _, spec := range stack.Services {
		if spec.Watch == nil || len(spec.Watch.Globs) == 0 {
			continue
		}
		debounce := defaultWatchDebounce
		if spec.Watch.Debounce > 0 {
			debounce = time.Duration(spec.Watch.Debounce) * time.Second
		}
		w.rules = append(w.rules, watchRule{
			service:  spec.Name,
			root:     spec.WorkDir,
			globs:    spec.Watch.Globs,
			debounce: debounce,
		})
	}
	w.lastSeen = make([]time.Time, len(w.rules))
	w.pendingSince = make([]time.Time, len(w.rules))
	return w
}

// RuleCount reports how many services declared a watch rule.
func (w *Watchdog) RuleCount() int {
	return len(w.rules)
}

// Prime captures a baseline so files existing at startup do not trigger.
func (w *Watchdog) Prime() {
	for i := range w.rules {
		w.lastSeen[i] = w.latestMtime(&w.rules[i])
		w.pendingSince[i] = time.Time{}
	}
}

/**
 * Poll every rule against the clock and return triggered service names
 * @param {time.Time} now - Injected clock, fixed in tests
 * @description
 * - A newly observed mtime opens the rule's debounce window; further changes
 *   inside the window extend the tracked mtime but not the window
 * - The trigger fires once the window has been open for the full debounce
 */
func (w *Watchdog) Poll(now time.Time) []string {
	var out []string
	for i := range w.rules {
		latest := w.latestMtime(&w.rules[i])
		if latest.After(w.lastSeen[i]) {
			if w.pendingSince[i].IsZero() {
				w.pendingSince[i] = now
			}
			w.lastSeen[i] = latest
		}

		if w.pendingSince[i].IsZero() {
			continue
		}
		if now.Sub(w.pendingSince[i]) < w.rules[i].debounce {
			continue
		}
		out = append(out, w.rules[i].service)
		w.pendingSince[i] = time.Time{}
	}
	return out
}

// latestMtime walks the rule's root and returns the newest mtime among files
// whose base name matches any of the globs. A missing root yields zero.
func (w *Watchdog) latestMtime(rule *watchRule) time.Time {
	var latest time.Time
	filepath.WalkDir(rule.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, glob := range rule.globs {
			ok, matchErr := filepath.Match(glob, d.Name())
			if matchErr != nil || !ok {
				continue
			}
			if info, err := d.Info(); err == nil && info.ModTime().After(latest) {
				latest = info.ModTime()
			}
			break
		}
		return nil
	})
	return latest
}
