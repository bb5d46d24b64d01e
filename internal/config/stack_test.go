package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stack-keeper/internal/models"
)

func validService(t *testing.T, name string) models.ServiceSpec {
	t.Helper()
	return models.ServiceSpec{
		Name:    name,
		Command: "/bin/sh",
		WorkDir: t.TempDir(),
	}
}

/**
 * Test that a well-formed manifest validates
 */
func TestStackValidateOK(t *testing.T) {
	repoPath := t.TempDir()
	svc := validService(t, "api")
	svc.Repo = "backend"
	spec := &StackSpec{
		Services: []models.ServiceSpec{svc, validService(t, "web")},
		Repos:    []models.RepoSpec{{Name: "backend", Path: repoPath}},
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
}

/**
 * Test the fail-fast rejection paths
 */
func TestStackValidateRejections(t *testing.T) {
	repoPath := t.TempDir()

	cases := []struct {
		name string
		spec StackSpec
		want string
	}{
		{
			name: "duplicate service name",
			spec: StackSpec{Services: []models.ServiceSpec{validService(t, "api"), validService(t, "api")}},
			want: "duplicate service name",
		},
		{
			name: "empty service name",
			spec: StackSpec{Services: []models.ServiceSpec{validService(t, "")}},
			want: "empty name",
		},
		{
			name: "missing command",
			spec: StackSpec{Services: []models.ServiceSpec{{Name: "api", WorkDir: t.TempDir()}}},
			want: "no command",
		},
		{
			name: "missing workspace",
			spec: StackSpec{Services: []models.ServiceSpec{{Name: "api", Command: "/bin/sh", WorkDir: "/nonexistent/dir"}}},
			want: "workspace missing",
		},
		{
			name: "unknown repo reference",
			spec: func() StackSpec {
				svc := validService(t, "api")
				svc.Repo = "ghost"
				return StackSpec{Services: []models.ServiceSpec{svc}}
			}(),
			want: "unknown repo",
		},
		{
			name: "duplicate repo name",
			spec: StackSpec{Repos: []models.RepoSpec{{Name: "r", Path: repoPath}, {Name: "r", Path: repoPath}}},
			want: "duplicate repo name",
		},
		{
			name: "missing repo checkout",
			spec: StackSpec{Repos: []models.RepoSpec{{Name: "r", Path: "/nonexistent/checkout"}}},
			want: "checkout missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %q", tc.want, err.Error())
			}
		})
	}
}

/**
 * Test loading a manifest file honoring the override env var
 */
func TestStackPathOverride(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "stack.json")
	t.Setenv("STACK_KEEPER_MANIFEST", manifest)

	if got := StackPath(); got != manifest {
		t.Fatalf("expected %s, got %s", manifest, got)
	}

	workDir := t.TempDir()
	data := `{"services":[{"name":"api","command":"/bin/sh","args":["-c","sleep 1"],"workdir":"` + workDir + `"}]}`
	if err := os.WriteFile(manifest, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := loadLocalStack(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Services) != 1 || spec.Services[0].Name != "api" {
		t.Fatalf("unexpected manifest contents: %+v", spec)
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("manifest failed validation: %v", err)
	}
}

/**
 * Test that a malformed manifest reports a parse error
 */
func TestStackLoadMalformed(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "stack.json")
	if err := os.WriteFile(manifest, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadLocalStack(manifest); err == nil {
		t.Fatal("malformed manifest accepted")
	}
}
