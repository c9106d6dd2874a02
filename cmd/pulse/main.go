// Command pulse watches a beam profile camera, fits a Gaussian to the live
// horizontal intensity profile and records sessions of frames, plots and
// pulse-duration measurements. It serves a live view and control surface
// over HTTP and optionally listens to a serial control pad.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/pulse.report/internal/catalog"
	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/fit"
	"github.com/banshee-data/pulse.report/internal/fsutil"
	"github.com/banshee-data/pulse.report/internal/monitor"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/plotter"
	"github.com/banshee-data/pulse.report/internal/profile"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/serialmux"
	"github.com/banshee-data/pulse.report/internal/session"
	"github.com/banshee-data/pulse.report/internal/version"
	"github.com/banshee-data/pulse.report/internal/video"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (defaults apply when empty)")
	sourceKind  = flag.String("source", "camera", "Frame source: camera, synthetic, screen or replay")
	replayDir   = flag.String("replay-dir", "", "Frames directory of a recorded session (source=replay)")
	replayLoop  = flag.Bool("replay-loop", true, "Restart the replay when it reaches the last frame")
	screenRect  = flag.String("screen-rect", "", "Screen region x0,y0,x1,y1 (source=screen, empty for the whole screen)")
	seed        = flag.Uint64("seed", 1, "Noise seed for the synthetic source")
	listen      = flag.String("listen", "", "Override the HTTP listen address")
	versionFlag = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "ctl":
			os.Exit(runCtl(os.Args[2:], os.Stdout, os.Stderr, nil))
		case "import":
			os.Exit(runImport(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	flag.Parse()
	if *versionFlag {
		fmt.Println("pulse " + version.String())
		return
	}

	cfg := config.EmptyPipelineConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadPipelineConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *listen != "" {
		cfg.Listen = listen
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.PipelineConfig) error {
	outputDir := cfg.GetOutputDir()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	src, err := openSource(*sourceKind, cfg, sourceFlags{
		replayDir:  *replayDir,
		replayLoop: *replayLoop,
		screenRect: *screenRect,
		seed:       *seed,
	})
	if err != nil {
		return fmt.Errorf("open %s source: %w", *sourceKind, err)
	}
	defer src.Close()

	extractor := profile.NewExtractor(extractorOptions(cfg))
	fitter := fit.NewFitter(fitterOptions(cfg))
	log.Printf("calibration factor %g fs/px, display unit %s", fitter.CalibrationFactor(), cfg.GetDisplayUnit())

	var (
		journal recording.Journal
		history monitor.Catalog
		admin   []monitor.AdminRouter
	)
	if path := cfg.GetCatalogPath(); path != "" {
		cat, err := catalog.Open(path)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer cat.Close()
		journal, history = cat, cat
		admin = append(admin, cat)
		log.Printf("session catalog at %s", cat.Path())
	}

	ctrl := recording.New(recording.Config{
		FS:        fsutil.OSFileSystem{},
		Store:     storeOptions(cfg),
		Fitter:    fitter,
		Extractor: extractor,
		Journal:   journal,
	})

	view := monitor.NewLiveView()
	displays := []pipeline.Display{view}

	var loop *pipeline.Loop
	var pad *serialmux.ControlPad
	var padPort interface {
		Monitor(context.Context) error
		Close() error
	}
	if path := cfg.GetSerialPort(); path != "" {
		mux, err := serialmux.OpenPort(path, serialmux.PortOptions{BaudRate: cfg.GetSerialBaudRate()})
		if err != nil {
			return fmt.Errorf("open control pad %s: %w", path, err)
		}
		pad = serialmux.NewControlPad(serialmux.ControlPadConfig{
			Device:      mux,
			Loop:        serialmux.CommanderFunc(func(ctx context.Context, cmd pipeline.Command, c recording.DirectoryChooser) (pipeline.Reply, error) { return loop.Submit(ctx, cmd, c) }),
			OutputDir:   outputDir,
			DisplayUnit: cfg.GetDisplayUnit(),
		})
		padPort = mux
		displays = append(displays, pad)
		admin = append(admin, mux)
		log.Printf("control pad on %s at %d baud", path, cfg.GetSerialBaudRate())
	}

	loop = pipeline.New(pipeline.Config{
		Source:     src,
		Extractor:  extractor,
		Controller: ctrl,
		Displays:   displays,
		Interval:   cfg.GetTickInterval(),
		Chooser:    recording.StaticChooser(outputDir),
	})

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     cfg.GetListen(),
		View:        view,
		Loop:        loop,
		Status:      ctrl,
		OutputDir:   outputDir,
		DisplayUnit: cfg.GetDisplayUnit(),
		Catalog:     history,
		Admin:       admin,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// an exit command ends the loop; take everything else down with it
		defer stop()
		if err := loop.Run(ctx); err != nil {
			log.Printf("capture loop: %v", err)
		}
		log.Printf("capture loop stopped: %+v", loop.Stats())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server: %v", err)
		}
	}()

	if pad != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := padPort.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("control pad monitor: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := pad.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("control pad: %v", err)
			}
		}()
	}

	<-ctx.Done()
	if padPort != nil {
		// unblocks the pending serial read
		if err := padPort.Close(); err != nil {
			log.Printf("close control pad: %v", err)
		}
	}
	wg.Wait()

	if st := ctrl.Status(); st.LastRoot != "" {
		log.Printf("last session: %s", st.LastRoot)
	}
	return nil
}

func extractorOptions(cfg *config.PipelineConfig) profile.Options {
	return profile.Options{
		BandHalfHeight: cfg.GetBandHalfHeight(),
		Channel:        cfg.GetChannel(),
		Sigma:          cfg.GetSmoothingSigma(),
	}
}

func fitterOptions(cfg *config.PipelineConfig) fit.Options {
	return fit.Options{
		CalibrationFactor: cfg.GetCalibrationFactor(),
		InitialSigma:      cfg.GetInitialSigma(),
		MaxEvaluations:    cfg.GetMaxIterations(),
		MinRSquared:       cfg.GetMinRSquared(),
	}
}

func storeOptions(cfg *config.PipelineConfig) session.Options {
	opts := session.DefaultOptions()
	opts.JPEGQuality = cfg.GetJPEGQuality()
	opts.Plotter = plotter.New()
	opts.Plotter.Unit = cfg.GetDisplayUnit()
	opts.Video = video.Options{
		FPS:     float64(cfg.GetFrameRate()),
		Width:   cfg.GetFrameWidth(),
		Height:  cfg.GetFrameHeight(),
		Quality: cfg.GetJPEGQuality(),
	}
	return opts
}
