package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/manimchat/manimchat/internal/logging"
)

// Manim quality flags and the resolution directory each one renders into.
var qualityDirs = map[string]string{
	"l": "480p15",
	"m": "720p30",
	"h": "1080p60",
	"p": "1440p60",
	"k": "2160p60",
}

// DefaultWorkers caps concurrent Manim processes.
const DefaultWorkers = 2

// maxOutputInError bounds how much Manim output is kept in a RenderError.
const maxOutputInError = 2000

// Runner executes an external command. ExecRunner is the real one.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec and returns combined output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Options configures a Renderer. Zero values pick defaults.
type Options struct {
	ManimBin  string // default "manim"
	SceneDir  string // where scripts are written
	MediaDir  string // manim --media_dir, served under URLPrefix
	URLPrefix string // default "/media"
	Quality   string // l, m, h, p or k; default l
	Workers   int
	Runner    Runner
	Logger    logrus.FieldLogger
}

// Video is a rendered animation.
type Video struct {
	SceneName string
	URL       string // path under URLPrefix, e.g. /media/videos/scene_ab12/480p15/Foo.mp4
	Path      string // file on disk
}

// RenderError reports a failed Manim run. Output is the tail of what Manim
// printed.
type RenderError struct {
	Scene  string
	Output string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("Manim render of %s failed: %v", e.Scene, e.Err)
	}
	return fmt.Sprintf("Manim render of %s failed:\n%s", e.Scene, e.Output)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer writes scripts and renders them with the Manim CLI.
type Renderer struct {
	opts Options
	sem  *semaphore.Weighted
	log  logrus.FieldLogger
}

// New creates a Renderer. SceneDir and MediaDir are created if missing.
func New(opts Options) (*Renderer, error) {
	if opts.ManimBin == "" {
		opts.ManimBin = "manim"
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/media"
	}
	if opts.Quality == "" {
		opts.Quality = "l"
	}
	if _, ok := qualityDirs[opts.Quality]; !ok {
		return nil, fmt.Errorf("unknown manim quality %q (want l, m, h, p or k)", opts.Quality)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.SceneDir == "" || opts.MediaDir == "" {
		return nil, errors.New("render: scene and media directories are required")
	}
	for _, dir := range []string{opts.SceneDir, opts.MediaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Renderer{opts: opts, sem: semaphore.NewWeighted(int64(opts.Workers)), log: log}, nil
}

// MediaDir returns the directory rendered videos land in.
func (r *Renderer) MediaDir() string { return r.opts.MediaDir }

// Render writes code to a fresh script file and renders its Scene.
// It blocks while the worker limit is reached.
func (r *Renderer) Render(ctx context.Context, code string) (Video, error) {
	scene, err := DetectScene(code)
	if err != nil {
		return Video{}, err
	}

	// Each request gets its own module so concurrent renders never share
	// an output directory.
	stem := "scene_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	script := filepath.Join(r.opts.SceneDir, stem+".py")
	if err := os.WriteFile(script, []byte(code), 0644); err != nil {
		return Video{}, fmt.Errorf("write scene script: %w", err)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Video{}, err
	}
	defer r.sem.Release(1)

	log := r.log.WithFields(logrus.Fields{"scene": scene, "script": stem})
	start := time.Now()
	out, err := r.opts.Runner.Run(ctx, r.opts.SceneDir, r.opts.ManimBin,
		"-q"+r.opts.Quality, "--media_dir", r.opts.MediaDir, script, scene)
	if err != nil {
		log.WithError(err).Warn("manim failed")
		return Video{}, &RenderError{Scene: scene, Output: tail(string(out), maxOutputInError), Err: err}
	}

	res := qualityDirs[r.opts.Quality]
	file := filepath.Join(r.opts.MediaDir, "videos", stem, res, scene+".mp4")
	if _, err := os.Stat(file); err != nil {
		return Video{}, &RenderError{Scene: scene, Err: fmt.Errorf("rendered video not found at %s", file)}
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("rendered")

	return Video{
		SceneName: scene,
		URL:       path.Join(r.opts.URLPrefix, "videos", stem, res, scene+".mp4"),
		Path:      file,
	}, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
