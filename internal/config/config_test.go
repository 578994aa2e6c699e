// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/internal/testutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// isolated returns options that cannot pick up a real user or local config.
func isolated(t *testing.T) LoadOptions {
	t.Helper()
	return LoadOptions{ConfigDirPath: t.TempDir(), WorkDir: t.TempDir()}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.ContainerEngine != ContainerEngineDocker {
		t.Errorf("ContainerEngine = %s, want docker", cfg.ContainerEngine)
	}
	if cfg.BuildKit.Address != DefaultBuildKitAddress {
		t.Errorf("BuildKit.Address = %q", cfg.BuildKit.Address)
	}
	if cfg.Build.TagPrefix != DefaultTagPrefix || cfg.Build.CacheDir != "" || cfg.Build.Reproducible {
		t.Errorf("Build = %+v", cfg.Build)
	}
	if cfg.UI.Verbose {
		t.Error("UI.Verbose should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	cfg, path, err := LoadWithSource(context.Background(), isolated(t))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if path != "" {
		t.Errorf("source = %q, want none", path)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("config = %+v, want defaults", cfg)
	}
}

func TestLoad_UserConfigDir(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	want := writeConfig(t, opts.ConfigDirPath, `
container_engine: "podman"
build: {
	tag_prefix: "registry.local/shop/api"
	reproducible: true
}
`)

	cfg, path, err := LoadWithSource(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if path != want {
		t.Errorf("source = %q, want %q", path, want)
	}
	if cfg.ContainerEngine != ContainerEnginePodman {
		t.Errorf("ContainerEngine = %s", cfg.ContainerEngine)
	}
	if cfg.Build.TagPrefix != "registry.local/shop/api" || !cfg.Build.Reproducible {
		t.Errorf("Build = %+v", cfg.Build)
	}
	// Unset keys keep their defaults.
	if cfg.BuildKit.Address != DefaultBuildKitAddress {
		t.Errorf("BuildKit.Address = %q", cfg.BuildKit.Address)
	}
}

func TestLoad_WorkDirFallback(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	writeConfig(t, opts.WorkDir, `ui: verbose: true`)

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.UI.Verbose {
		t.Error("local config.cue was not read")
	}
}

func TestLoad_UserConfigWinsOverWorkDir(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	writeConfig(t, opts.ConfigDirPath, `container_engine: "podman"`)
	writeConfig(t, opts.WorkDir, `container_engine: "buildkit"`)

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ContainerEngine != ContainerEnginePodman {
		t.Errorf("ContainerEngine = %s, want podman", cfg.ContainerEngine)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	writeConfig(t, opts.ConfigDirPath, `container_engine: "podman"`)
	opts.ConfigFilePath = writeConfig(t, t.TempDir(), `
container_engine: "buildkit"
buildkit: address: "tcp://buildkitd:1234"
`)

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ContainerEngine != ContainerEngineBuildKit || cfg.BuildKit.Address != "tcp://buildkitd:1234" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	opts.ConfigFilePath = filepath.Join(t.TempDir(), "absent.cue")

	_, err := NewProvider().Load(context.Background(), opts)
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want ActionableError", err)
	}
	if ae.Resource != opts.ConfigFilePath {
		t.Errorf("Resource = %q", ae.Resource)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown engine", `container_engine: "containerd"`},
		{"unknown field", `cache: true`},
		{"wrong type", `ui: verbose: "yes"`},
		{"bad tag prefix", `build: tag_prefix: "Upper/Case"`},
		{"address without scheme", `buildkit: address: "/run/buildkit.sock"`},
		{"syntax error", `container_engine: `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := isolated(t)
			writeConfig(t, opts.ConfigDirPath, tt.content)
			_, err := NewProvider().Load(context.Background(), opts)
			if err == nil {
				t.Fatal("Load() should reject the file")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Operation != "load configuration" {
				t.Errorf("error = %v, want load configuration ActionableError", err)
			}
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, isolated(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// Environment overrides mutate process state, so these tests are not parallel.
func TestLoad_EnvOverrides(t *testing.T) {
	opts := isolated(t)
	writeConfig(t, opts.ConfigDirPath, `container_engine: "podman"`)

	t.Setenv("BERTH_CONTAINER_ENGINE", "buildkit")
	t.Setenv("BERTH_BUILD_REPRODUCIBLE", "true")
	t.Setenv("BERTH_BUILD_TAG_PREFIX", "ci/service")

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ContainerEngine != ContainerEngineBuildKit {
		t.Errorf("ContainerEngine = %s, want buildkit", cfg.ContainerEngine)
	}
	if !cfg.Build.Reproducible || cfg.Build.TagPrefix != "ci/service" {
		t.Errorf("Build = %+v", cfg.Build)
	}
}

func TestLoad_InvalidEnvOverride(t *testing.T) {
	t.Setenv("BERTH_CONTAINER_ENGINE", "lxc")

	_, err := NewProvider().Load(context.Background(), isolated(t))
	if !errors.Is(err, ErrInvalidContainerEngine) {
		t.Errorf("error = %v, want ErrInvalidContainerEngine", err)
	}
}

func TestConfigDir(t *testing.T) {
	t.Cleanup(Reset)

	SetConfigDirOverride("/custom/berth")
	dir, err := ConfigDir()
	if err != nil || dir != "/custom/berth" {
		t.Errorf("ConfigDir() = %q, %v", dir, err)
	}

	Reset()
	dir, err = ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if filepath.Base(dir) != AppName {
		t.Errorf("ConfigDir() = %q, want .../%s", dir, AppName)
	}
}

func TestConfigDir_XDGAndHome(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout applies to Linux")
	}
	t.Cleanup(Reset)
	Reset()

	home := t.TempDir()
	t.Cleanup(testutil.SetHomeDir(t, home))
	t.Cleanup(testutil.MustUnsetenv(t, "XDG_CONFIG_HOME"))

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if want := filepath.Join(home, ".config", AppName); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}

	xdg := t.TempDir()
	t.Cleanup(testutil.MustSetenv(t, "XDG_CONFIG_HOME", xdg))
	dir, err = ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if want := filepath.Join(xdg, AppName); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	want := &Config{
		ContainerEngine: ContainerEnginePodman,
		BuildKit:        BuildKitConfig{Address: "tcp://127.0.0.1:1234"},
		Build: BuildConfig{
			CacheDir:     "/var/cache/berth",
			TagPrefix:    "shop/api",
			Reproducible: true,
		},
		UI: UIConfig{Verbose: true},
	}

	out := GenerateCUE(want)
	if !strings.Contains(out, `container_engine: "podman"`) {
		t.Errorf("GenerateCUE() missing engine:\n%s", out)
	}

	opts := isolated(t)
	writeConfig(t, opts.ConfigDirPath, out)
	got, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load(GenerateCUE()) error: %v\n%s", err, out)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestSave(t *testing.T) {
	t.Cleanup(Reset)
	dir := filepath.Join(t.TempDir(), "nested")
	SetConfigDirOverride(dir)

	path, err := Save(DefaultConfig())
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("Save() path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved file: %v", err)
	}
}
