// Command inkctl replays editing scripts through the drawing engine and
// inspects stored drawings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"inkboard/client"
	"inkboard/drawing"
	"inkboard/engine"
	"inkboard/localcache"
	"inkboard/persist"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type config struct {
	server   string
	cacheDir string
	canvas   string
	layer    string
	width    float64
	height   float64
	logLevel string
	timeout  time.Duration
}

func (c config) key() persist.Key {
	return persist.Key{CanvasID: c.canvas, LayerID: c.layer}
}

func commonFlags(name string, cfg *config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.server, "server", os.Getenv("INKBOARD_SERVER"), "Document service base URL, e.g. http://localhost:3002/api/v1")
	fs.StringVar(&cfg.cacheDir, "cache", envOr("INKBOARD_CACHE", ".inkboard-cache"), "Local backup cache directory")
	fs.StringVar(&cfg.canvas, "canvas", "default", "Canvas id")
	fs.StringVar(&cfg.layer, "layer", "main", "Layer id")
	fs.Float64Var(&cfg.width, "width", engine.DefaultWidth, "Surface width")
	fs.Float64Var(&cfg.height, "height", engine.DefaultHeight, "Surface height")
	fs.StringVar(&cfg.logLevel, "loglevel", "warn", "Set the logging level: debug, info, warn, error")
	fs.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "Overall timeout")
	return fs
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("inkctl")+" <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  replay -script FILE   run an editing script and save the result")
	fmt.Fprintln(w, "  show                  load and print the stored drawing")
	fmt.Fprintln(w, "  cache-clear           drop the local backup of a drawing")
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(cmd string, args []string, out io.Writer) error {
	var cfg config
	var scriptPath string
	fs := commonFlags(cmd, &cfg)
	switch cmd {
	case "replay":
		fs.StringVar(&scriptPath, "script", "", "Script file (YAML or JSON)")
	case "show", "cache-clear":
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := cfg.key().Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	switch cmd {
	case "replay":
		if scriptPath == "" {
			return errors.New("replay needs -script")
		}
		script, err := LoadScript(scriptPath)
		if err != nil {
			return err
		}
		rep, err := replay(ctx, cfg, script)
		if err != nil {
			return err
		}
		rep.print(out)
		return nil
	case "show":
		return show(ctx, cfg, out)
	default:
		return clearCache(cfg, out)
	}
}

func newBridge(cfg config) (*persist.Bridge, *localcache.FileCache, error) {
	var remote persist.Remote
	if cfg.server != "" {
		remote = persist.StoreRemote{Store: client.New(cfg.server)}
	}
	var cache *localcache.FileCache
	if cfg.cacheDir != "" {
		c, err := localcache.NewFileCache(cfg.cacheDir)
		if err != nil {
			return nil, nil, err
		}
		cache = c
	}
	log := logrus.WithField("command", "inkctl")
	if cache == nil {
		return persist.NewBridge(remote, nil, persist.WithLogger(log)), nil, nil
	}
	return persist.NewBridge(remote, cache, persist.WithLogger(log)), cache, nil
}

type report struct {
	key      persist.Key
	loaded   persist.LoadResult
	steps    int
	doc      *drawing.Document
	undoLen  int
	redoLen  int
	warnings []error
}

func (r *report) print(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render(r.key.String()))
	line := fmt.Sprintf("loaded from %s", r.loaded.Source)
	if r.loaded.Recovered {
		fmt.Fprintln(w, warnStyle.Render(line+", recovered from local backup"))
	} else {
		fmt.Fprintln(w, dimStyle.Render(line))
	}
	fmt.Fprintf(w, "%d steps replayed, %d paths, history %d/%d\n", r.steps, r.doc.Len(), r.undoLen, r.redoLen)
	if len(r.warnings) == 0 {
		fmt.Fprintln(w, okStyle.Render("saved"))
		return
	}
	for _, err := range r.warnings {
		fmt.Fprintln(w, warnStyle.Render("warning: "+err.Error()))
	}
}

// replay loads the drawing, runs every step on the surface loop and closes
// the surface, which flushes the pending save.
func replay(ctx context.Context, cfg config, script *Script) (*report, error) {
	bridge, cache, err := newBridge(cfg)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		defer cache.Close()
	}

	width, height := cfg.width, cfg.height
	if script.Width > 0 && script.Height > 0 {
		width, height = script.Width, script.Height
	}

	rep := &report{key: cfg.key()}
	var mu sync.Mutex
	loaded := make(chan persist.LoadResult, 1)

	loop := engine.NewLoop().Start()
	defer func() {
		loop.Stop()
		<-loop.Done()
	}()

	surf, err := engine.New(bridge, cfg.key(), engine.Options{
		Width:     width,
		Height:    height,
		Scheduler: loop,
		OnLoad:    func(res persist.LoadResult) { loaded <- res },
		OnWarning: func(err error) {
			mu.Lock()
			rep.warnings = append(rep.warnings, err)
			mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}

	loop.Do(func() { surf.Load(ctx) })
	select {
	case rep.loaded = <-loaded:
	case <-ctx.Done():
		loop.Do(surf.Close)
		return nil, fmt.Errorf("load %s: %w", cfg.key(), ctx.Err())
	}

	for _, step := range script.Steps {
		loop.Do(func() { step.Apply(surf) })
		rep.steps++
	}
	loop.Do(func() {
		rep.doc = surf.Document()
		rep.undoLen = surf.History().UndoLen()
		rep.redoLen = surf.History().RedoLen()
	})
	loop.Do(surf.Close)
	// Warnings from the final push are posted after Close returns.
	loop.Do(func() {})

	mu.Lock()
	defer mu.Unlock()
	return rep, nil
}

func show(ctx context.Context, cfg config, out io.Writer) error {
	bridge, cache, err := newBridge(cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}
	res := bridge.Load(ctx, cfg.key(), cfg.width, cfg.height)

	fmt.Fprintln(out, titleStyle.Render(cfg.key().String()))
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("source %s, stored in %s coordinates", res.Source, res.Space)))
	if res.Recovered {
		fmt.Fprintln(out, warnStyle.Render("not on the server yet, read from local backup"))
	}
	for _, p := range res.Document.Paths() {
		b := p.Bounds()
		fmt.Fprintf(out, "%s  %-8s %s  width %.1f  (%.1f, %.1f)-(%.1f, %.1f)\n",
			p.ID, p.Composite, p.Stroke, p.StrokeWidth, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	fmt.Fprintf(out, "%d paths\n", res.Document.Len())
	return nil
}

func clearCache(cfg config, out io.Writer) error {
	if cfg.cacheDir == "" {
		return errors.New("cache-clear needs -cache")
	}
	cache, err := localcache.NewFileCache(cfg.cacheDir)
	if err != nil {
		return err
	}
	defer cache.Close()
	if err := cache.Remove(cfg.key().CacheKey()); err != nil {
		return err
	}
	fmt.Fprintln(out, okStyle.Render("removed local backup of "+cfg.key().String()))
	return nil
}
