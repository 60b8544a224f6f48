// Package check verifies the external tools the pipeline shells out to.
package check

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/fatih/color"

	"github.com/magpiebot/magpie/internal/config"
)

// Result is one dependency's probe outcome.
type Result struct {
	Name    string
	Path    string
	Version string
	Err     error
}

// OK reports whether the dependency is usable.
func (r Result) OK() bool { return r.Err == nil }

// Run probes every external binary the config points at.
func Run(cfg *config.Config) []Result {
	return []Result{
		probe("yt-dlp", cfg.YTDLP.Path, "--version"),
		probe("ffmpeg", cfg.FFmpeg.Path, "-version"),
		probe("ffprobe", cfg.FFmpeg.ProbePath, "-version"),
	}
}

// probe resolves the binary and captures its version line.
func probe(name, path, versionFlag string) Result {
	if path == "" {
		path = name
	}
	res := Result{Name: name}

	abs, err := exec.LookPath(path)
	if err != nil {
		res.Err = fmt.Errorf("%s not found in PATH", path)
		return res
	}
	res.Path = abs

	out, err := exec.Command(abs, versionFlag).Output()
	if err != nil {
		res.Err = fmt.Errorf("%s failed to run: %w", name, err)
		return res
	}
	res.Version = firstLine(string(out))
	return res
}

// Print writes a colored report and reports overall health.
func Print(w io.Writer, results []Result) bool {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	bold := color.New(color.Bold)

	bold.Fprintln(w, "External dependencies:")
	ok := true
	for _, r := range results {
		if r.OK() {
			green.Fprintf(w, "  OK      ")
			fmt.Fprintf(w, "%-8s %s (%s)\n", r.Name, r.Path, r.Version)
		} else {
			ok = false
			red.Fprintf(w, "  MISSING ")
			fmt.Fprintf(w, "%-8s %v\n", r.Name, r.Err)
		}
	}
	return ok
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
