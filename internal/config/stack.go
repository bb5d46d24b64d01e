package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"stack-keeper/internal/env"
	"stack-keeper/internal/models"
)

/**
 * Stack manifest: the static set of supervised services and tracked repos
 * @property {[]models.ServiceSpec} services - Declared services, start order
 * @property {[]models.RepoSpec} repos - Managed repository checkouts
 */
type StackSpec struct {
	Services []models.ServiceSpec `json:"services"`
	Repos    []models.RepoSpec    `json:"repos"`
}

func loadLocalStack(fname string) (*StackSpec, error) {
	bytes, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("load '%s' failed: %v", fname, err)
	}
	var spec StackSpec
	if err := json.Unmarshal(bytes, &spec); err != nil {
		return nil, fmt.Errorf("unmarshal '%s' failed: %v", fname, err)
	}
	return &spec, nil
}

// Validate fails fast when the manifest would produce a partially valid
// stack: duplicate names, missing working directories or repo checkouts.
func (s *StackSpec) Validate() error {
	seen := make(map[string]bool)
	repos := make(map[string]bool)
	for _, repo := range s.Repos {
		if repo.Name == "" {
			return fmt.Errorf("repo with empty name")
		}
		if repos[repo.Name] {
			return fmt.Errorf("duplicate repo name: %s", repo.Name)
		}
		repos[repo.Name] = true
		if st, err := os.Stat(repo.Path); err != nil || !st.IsDir() {
			return fmt.Errorf("repo [%s] checkout missing: %s", repo.Name, repo.Path)
		}
	}
	for _, svc := range s.Services {
		if svc.Name == "" {
			return fmt.Errorf("service with empty name")
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service name: %s", svc.Name)
		}
		seen[svc.Name] = true
		if svc.Command == "" {
			return fmt.Errorf("service [%s] has no command", svc.Name)
		}
		if st, err := os.Stat(svc.WorkDir); err != nil || !st.IsDir() {
			return fmt.Errorf("workspace missing: %s (service [%s])", svc.WorkDir, svc.Name)
		}
		if svc.Repo != "" && !repos[svc.Repo] {
			return fmt.Errorf("service [%s] references unknown repo: %s", svc.Name, svc.Repo)
		}
	}
	return nil
}

var stack *StackSpec

// StackPath returns the manifest location; STACK_KEEPER_MANIFEST overrides
// the default under the keeper directory.
func StackPath() string {
	if p := os.Getenv("STACK_KEEPER_MANIFEST"); p != "" {
		return p
	}
	return filepath.Join(env.KeeperDir, "share", "stack-spec.json")
}

func LoadStack() error {
	if stack != nil {
		return nil
	}
	spec, err := loadLocalStack(StackPath())
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	stack = spec
	return nil
}

// SetStack installs a manifest directly. Used by tests and by callers that
// build the manifest from validated external input instead of a file.
func SetStack(spec *StackSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	stack = spec
	return nil
}

func Stack() *StackSpec {
	if stack == nil {
		log.Fatalln("Must run config.LoadStack first")
		return nil
	}
	return stack
}
