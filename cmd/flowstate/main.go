package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/capture"
	"github.com/ayusman/flowstate/internal/config"
	"github.com/ayusman/flowstate/internal/detector"
	"github.com/ayusman/flowstate/internal/server"
	"github.com/ayusman/flowstate/internal/store"
	"github.com/ayusman/flowstate/internal/viewer"
)

const usage = `FlowState - pose flow analysis

Usage:
  flowstate analyze -frames DIR [-config FILE] [-out DIR] [-title TITLE] [-serve] [-debug]
  flowstate serve [-config FILE]
  flowstate list [-config FILE]
  flowstate export -id ID [-config FILE] [-out DIR]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		var detErr *analysis.InsufficientDetectionError
		if errors.As(err, &detErr) {
			log.Printf("Analysis failed: %v", detErr)
			os.Exit(3)
		}
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	framesDir := fs.String("frames", "", "directory of extracted video frames")
	configPath := fs.String("config", "", "TOML configuration file")
	outDir := fs.String("out", "", "viewer output directory (default from config)")
	title := fs.String("title", "", "analysis title")
	serve := fs.Bool("serve", false, "serve the viewer after analysis")
	debug := fs.Bool("debug", false, "verbose pipeline logging")
	fs.Parse(args)

	if *framesDir == "" {
		return errors.New("-frames must be provided")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *debug {
		cfg.Debug = true
	}
	if *outDir != "" {
		cfg.Storage.OutputDir = *outDir
	}
	setupLogging(cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	src, err := capture.NewDirSource(*framesDir)
	if err != nil {
		return err
	}
	log.Printf("Found %d frames in %s", src.Len(), *framesDir)

	width, height, err := capture.Dimensions(src)
	if err != nil {
		return err
	}
	log.Printf("Frame size %dx%d", width, height)

	det := newDetector(cfg)
	defer det.Close()

	analyzer := analysis.New(cfg.AnalysisConfig(), det)

	bar := pb.StartNew(src.Len())
	analyzer.OnProgress(func(e analysis.Event) {
		if e.Stage == analysis.StageDetect {
			bar.SetCurrent(int64(e.Done))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := analyzer.Analyze(ctx, src)
	bar.Finish()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	saved, err := st.Analyses().Save(*title, *framesDir, result)
	if err != nil {
		return err
	}

	info := viewer.NewInfo(*title, *framesDir, result, cfg.Analysis.FrameRate)
	info.ID = saved.ID
	info.Width, info.Height = width, height
	if err := viewer.Write(cfg.Storage.OutputDir, result, info, viewerSettings(cfg, st)); err != nil {
		return err
	}

	printSummary(saved)
	log.Printf("Viewer data written to %s", cfg.Storage.OutputDir)

	if !*serve {
		return nil
	}

	srv := server.New(server.Config{
		StaticDir:      cfg.Storage.OutputDir,
		Store:          st,
		Analyzer:       analyzer,
		ViewerSettings: cfg.ViewerSettings(),
	})
	return listen(ctx, srv, cfg.Server.Addr)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "TOML configuration file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	log.Printf("Using database %s", st.Path())

	det := newDetector(cfg)
	defer det.Close()

	staticDir, err := filepath.Abs(cfg.Storage.OutputDir)
	if err != nil {
		staticDir = cfg.Storage.OutputDir
	}
	log.Printf("Serving static files from: %s", staticDir)

	srv := server.New(server.Config{
		StaticDir:      staticDir,
		Store:          st,
		Analyzer:       analysis.New(cfg.AnalysisConfig(), det),
		ViewerSettings: cfg.ViewerSettings(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return listen(ctx, srv, cfg.Server.Addr)
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "TOML configuration file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	analyses, err := st.Analyses().List()
	if err != nil {
		return err
	}
	if len(analyses) == 0 {
		fmt.Println("No analyses yet")
		return nil
	}

	for _, a := range analyses {
		fmt.Printf("%s  %-24s flow %5.1f  detected %5.1f%%  %s\n",
			a.ID, a.Title, a.Scores.Flow, a.DetectionRate*100, a.CreatedAt.Format(time.DateTime))
	}
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	id := fs.String("id", "", "analysis id")
	configPath := fs.String("config", "", "TOML configuration file")
	outDir := fs.String("out", "", "viewer output directory (default from config)")
	fs.Parse(args)

	if *id == "" {
		return errors.New("-id must be provided")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Storage.OutputDir = *outDir
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	a, err := st.Analyses().GetByID(*id)
	if err != nil {
		return fmt.Errorf("analysis %s: %w", *id, err)
	}
	result, err := st.Analyses().GetResult(*id)
	if err != nil {
		return fmt.Errorf("analysis %s: %w", *id, err)
	}

	info := viewer.NewInfo(a.Title, a.Source, result, cfg.Analysis.FrameRate)
	info.ID = a.ID
	if err := viewer.Write(cfg.Storage.OutputDir, result, info, viewerSettings(cfg, st)); err != nil {
		return err
	}

	log.Printf("Viewer data for %s written to %s", a.ID, cfg.Storage.OutputDir)
	return nil
}

// viewerSettings returns the configured viewer settings with the stored
// preferences applied.
func viewerSettings(cfg *config.Config, st *store.Store) viewer.Settings {
	settings := cfg.ViewerSettings()
	prefs, err := st.Settings().All()
	if err != nil {
		log.Printf("Failed to load viewer preferences: %v", err)
		return settings
	}
	return settings.Apply(prefs)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

// newDetector starts the pose service detector, falling back to the mock
// detector when the service is not installed.
func newDetector(cfg *config.Config) detector.Detector {
	det, err := detector.NewServiceDetector(cfg.DetectorConfig())
	if err != nil {
		log.Printf("Pose service not available (%v), using mock detector", err)
		return detector.NewMockDetector()
	}
	log.Println("Using pose service detection")
	return det
}

// listen serves srv on addr until ctx is cancelled.
func listen(ctx context.Context, srv *server.Server, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", addr)
		errCh <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printSummary(a *store.Analysis) {
	fmt.Printf("\nAnalysis %s\n", a.ID)
	fmt.Printf("  Frames:            %d detected of %d (%.1f%%)\n", a.DetectedFramesCount, a.FrameCount, a.DetectionRate*100)
	fmt.Printf("  Interpolated:      %d\n", a.InterpolatedFrameCount)
	fmt.Printf("  Flow:              %.1f\n", a.Scores.Flow)
	fmt.Printf("  Balance:           %.1f\n", a.Scores.Balance)
	fmt.Printf("  Smoothness:        %.1f\n", a.Scores.Smoothness)
	fmt.Printf("  Energy:            %.1f\n", a.Scores.Energy)
	fmt.Printf("  Hand activity:     %.1f\n", a.Scores.HandActivity)
	fmt.Printf("  Posture stability: %.1f\n", a.Scores.PostureStability)
}
