package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/camplay/internal/config"
	"github.com/cjeanneret/camplay/internal/debug"
	"github.com/cjeanneret/camplay/internal/display"
	"github.com/cjeanneret/camplay/internal/hw/button"
	"github.com/cjeanneret/camplay/internal/hw/camera"
	"github.com/cjeanneret/camplay/internal/hw/gpio"
	"github.com/cjeanneret/camplay/internal/logic/capture"
	"github.com/cjeanneret/camplay/internal/permission"
	"github.com/cjeanneret/camplay/internal/web"
)

// Version is the application version.
const Version = "0.1.0"

const maxDisplayPx = 16384

// options holds the command-line flags shared by all commands.
type options struct {
	configPath string
	web        webPortFlag
	width      int
	height     int
	out        string
	yes        bool

	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{web: webPortFlag{defaultPort: 8080}}

	root := &cobra.Command{
		Use:     "camplay",
		Short:   "Take a picture and show it sized for the screen",
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if port := opts.web.port(); port > 0 {
				return runWeb(cmd.Context(), opts.cfg, port)
			}
			return runOnce(cmd.Context(), opts, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	pf.IntVar(&opts.width, "width", 0, "override display width in pixels (1-16384)")
	pf.IntVar(&opts.height, "height", 0, "override display height in pixels (1-16384)")
	pf.StringVar(&opts.out, "out", "", "write the displayed JPEG to this file")

	f := root.Flags()
	f.Var(&opts.web, "web", "start web server on port; --web for default 8080, --web=8980 for custom port")
	f.Lookup("web").NoOptDefVal = strconv.Itoa(opts.web.defaultPort)
	f.BoolVarP(&opts.yes, "yes", "y", false, "grant the storage permission without asking")

	root.AddCommand(newResampleCmd(opts))
	return root
}

// load validates the flags, reads the configuration and initializes debug output.
func (o *options) load() error {
	if err := config.ValidateConfigPath(o.configPath); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if err := validateDisplayOverride(o.width, o.height); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}
	applyOverrides(cfg, o.width, o.height)
	o.cfg = cfg

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", o.configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Pictures dir", cfg.Storage.PicturesDir)
	debug.Value("Display", display.Metrics{WidthPx: cfg.Display.WidthPx, HeightPx: cfg.Display.HeightPx})
	return nil
}

// runOnce takes one picture from the terminal.
func runOnce(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg := opts.cfg

	debug.Step(1, "Initializing camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init camera failed: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	var requester permission.Requester = permission.NewTerminalRequester()
	if opts.yes {
		requester = permission.AutoRequester(true)
	}

	orch := capture.NewOrchestrator(capture.Deps{
		Camera:      withSpinner(cam, os.Stderr),
		Requester:   requester,
		Metrics:     display.Static{WidthPx: cfg.Display.WidthPx, HeightPx: cfg.Display.HeightPx},
		Notifier:    stderrNotifier(os.Stderr),
		Displayer:   &fileDisplayer{out: opts.out, w: stdout},
		PicturesDir: cfg.Storage.PicturesDir,
		Quality:     cfg.Display.JPEGQuality,
	})

	_, err = orch.TakePicture(ctx, display.Metrics{})
	if errors.Is(err, capture.ErrCancelled) {
		fmt.Fprintln(stdout, "Capture cancelled")
		return nil
	}
	return err
}

// runWeb serves the browser UI until ctx is cancelled.
func runWeb(ctx context.Context, cfg *config.Config, port int) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	debug.Step(1, "Initializing camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init camera failed: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	requester := permission.NewAsyncRequester(func(reason string) {
		broadcaster.Broadcast(web.LevelPermission, reason)
	})
	requester.Timeout = cfg.PromptTimeout()
	debug.Value("Permission prompt timeout", requester.Timeout)
	photos := web.NewPhotoView(broadcaster)
	orch := capture.NewOrchestrator(capture.Deps{
		Camera:      cam,
		Requester:   requester,
		Metrics:     display.Static{WidthPx: cfg.Display.WidthPx, HeightPx: cfg.Display.HeightPx},
		Notifier:    broadcaster,
		Displayer:   photos,
		PicturesDir: cfg.Storage.PicturesDir,
		Quality:     cfg.Display.JPEGQuality,
	})
	state := func() string { return orch.State().String() }
	takePicture := func(ctx context.Context, target display.Metrics) error {
		_, err := orch.TakePicture(ctx, target)
		return err
	}

	if cfg.Button != nil {
		debug.Step(2, "Initializing shutter button")
		stopButton, err := startButton(ctx, cfg, func() {
			err := takePicture(ctx, display.Metrics{})
			switch {
			case err == nil:
				broadcaster.Broadcast(web.LevelInfo, "Photo ready")
			case errors.Is(err, capture.ErrBusy):
				debug.Live("Button: capture already in progress")
			case errors.Is(err, capture.ErrCancelled):
				broadcaster.Broadcast(web.LevelInfo, "Capture cancelled")
			default:
				broadcaster.Broadcast(web.LevelError, "Capture failed: "+err.Error())
			}
			broadcaster.Broadcast(web.LevelState, state())
		})
		if err != nil {
			return err
		}
		defer stopButton()
	}

	srv := web.NewServer(fmt.Sprintf(":%d", port), web.Deps{
		Broadcaster: broadcaster,
		Capture:     takePicture,
		Permission:  requester,
		Photos:      photos,
		State:       state,
		Busy:        orch.Busy,
		FormDefaults: web.FormConfig{
			ScreenWidth:  cfg.Display.WidthPx,
			ScreenHeight: cfg.Display.HeightPx,
		},
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

// startButton watches the configured GPIO push button. Each press runs
// onPress in its own goroutine. The returned func releases the GPIO driver.
func startButton(ctx context.Context, cfg *config.Config, onPress func()) (func(), error) {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO failed: %w", err)
	}
	w, err := button.NewWatcher(gpioDriver, cfg.Button.Pin, cfg.ButtonPoll(), cfg.ButtonDebounce())
	if err != nil {
		gpioDriver.Close()
		return nil, fmt.Errorf("init button failed: %w", err)
	}
	debug.PrintStruct("Button config", cfg.Button)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx, func() { go onPress() }); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("button watcher: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}, nil
}

// validateDisplayOverride checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateDisplayOverride(width, height int) error {
	if width != 0 && (width < 1 || width > maxDisplayPx) {
		return fmt.Errorf("width must be between 1 and %d, got %d", maxDisplayPx, width)
	}
	if height != 0 && (height < 1 || height > maxDisplayPx) {
		return fmt.Errorf("height must be between 1 and %d, got %d", maxDisplayPx, height)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only positive values are applied.
func applyOverrides(cfg *config.Config, width, height int) {
	if width > 0 {
		cfg.Display.WidthPx = width
	}
	if height > 0 {
		cfg.Display.HeightPx = height
	}
}

// webPortFlag implements pflag.Value for --web: 0 = disabled, --web → 8080, --web=8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case "command":
		return camera.NewCommandCamera(
			cfg.Camera.Command,
			cfg.Camera.Args,
			cfg.Camera.CancelExitCode,
			cfg.CameraTimeout(),
		), nil
	case "synthetic":
		return camera.NewSyntheticCamera(
			cfg.Camera.SyntheticWidthPx,
			cfg.Camera.SyntheticHeightPx,
			cfg.Camera.SyntheticCancel,
		), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}
