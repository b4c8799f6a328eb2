package buildinfo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Unknown is reported when no version source is available.
const Unknown = "?"

// MarkerFile is the name of the optional file holding a literal version string.
const MarkerFile = ".version"

const gitTimeout = 3 * time.Second

var (
	currentOnce sync.Once
	current     string
)

// Current returns the bot version. It is resolved on first use from the
// directory of the running executable and cached for the process lifetime.
func Current() string {
	currentOnce.Do(func() {
		current = defaultResolver().resolve()
	})
	return current
}

type resolver struct {
	dirs      []string
	stamped   string
	git       func(ctx context.Context, dir string, args ...string) (string, error)
	buildInfo func() (*debug.BuildInfo, bool)
}

func defaultResolver() resolver {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return resolver{
		dirs:      dirs,
		stamped:   Version,
		git:       runGit,
		buildInfo: debug.ReadBuildInfo,
	}
}

// resolve tries, in order: the marker file, the ldflags version, git metadata
// of the source tree and the VCS data embedded by the Go toolchain.
func (r resolver) resolve() string {
	for _, dir := range r.dirs {
		if v, ok := readMarker(dir); ok {
			return v
		}
	}
	if r.stamped != "" && r.stamped != "dev" {
		return r.stamped
	}
	if r.git != nil {
		for _, dir := range r.dirs {
			if v, ok := r.fromGit(dir); ok {
				return v
			}
		}
	}
	if r.buildInfo != nil {
		if v, ok := fromBuildInfo(r.buildInfo); ok {
			return v
		}
	}
	return Unknown
}

func readMarker(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}

func (r resolver) fromGit(dir string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	describe, err := r.git(ctx, dir, "describe", "--long", "--always")
	if err != nil || describe == "" {
		return "", false
	}
	stamp, err := r.git(ctx, dir, "log", "-1", "--format=%cI")
	if err != nil {
		return describe, true
	}
	return withTime(describe, stamp), true
}

func fromBuildInfo(read func() (*debug.BuildInfo, bool)) (string, bool) {
	info, ok := read()
	if !ok || info == nil {
		return "", false
	}
	var revision, stamp string
	var modified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			stamp = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v, true
		}
		return "", false
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified {
		revision += "-dirty"
	}
	return withTime(revision, stamp), true
}

func withTime(desc, stamp string) string {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(stamp))
	if err != nil {
		return desc
	}
	return desc + " (" + t.Format("2006-01-02 15:04") + ")"
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", errors.New("git: empty output")
	}
	return v, nil
}
