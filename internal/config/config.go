package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CameraConfig describes how to reach the host camera capability.
// Type selects a concrete implementation ("command" or "synthetic").
type CameraConfig struct {
	Type           string   `yaml:"type"`             // "command" or "synthetic"
	Command        string   `yaml:"command"`          // e.g. "libcamera-still"
	Args           []string `yaml:"args"`             // "{output}" is replaced with the destination path
	CancelExitCode int      `yaml:"cancel_exit_code"` // exit code meaning "user cancelled". 0 = none.
	TimeoutMs      int      `yaml:"timeout_ms"`       // 0 = no timeout
	// Synthetic camera only
	SyntheticWidthPx  int  `yaml:"synthetic_width_px"`
	SyntheticHeightPx int  `yaml:"synthetic_height_px"`
	SyntheticCancel   bool `yaml:"synthetic_cancel"`
}

// StorageConfig locates the app-private pictures directory.
type StorageConfig struct {
	PicturesDir string `yaml:"pictures_dir"`
}

// DisplayConfig holds the target screen size used when the client does not send one.
type DisplayConfig struct {
	WidthPx     int `yaml:"width_px"`     // e.g. 1080
	HeightPx    int `yaml:"height_px"`    // e.g. 1920
	JPEGQuality int `yaml:"jpeg_quality"` // 1-100
}

// ButtonConfig is optional: a hardware push button that triggers a capture.
type ButtonConfig struct {
	Pin        int `yaml:"pin"`         // BCM pin, active LOW with pull-up
	PollMs     int `yaml:"poll_ms"`     // polling interval
	DebounceMs int `yaml:"debounce_ms"` // minimum time between presses
}

// PermissionConfig controls how the storage permission is asked for.
type PermissionConfig struct {
	PromptTimeoutMs int `yaml:"prompt_timeout_ms"` // unanswered web prompts are denied after this delay
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Storage    StorageConfig    `yaml:"storage"`
	Display    DisplayConfig    `yaml:"display"`
	Button     *ButtonConfig    `yaml:"button,omitempty"` // optional
	Permission PermissionConfig `yaml:"permission"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// "configs" directory and does not try to escape it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case "command":
		if c.Camera.Command == "" {
			return fmt.Errorf("camera.command is required for command camera")
		}
		if len(c.Camera.Args) == 0 {
			c.Camera.Args = []string{"{output}"}
		}
	case "synthetic":
		if c.Camera.SyntheticWidthPx <= 0 {
			c.Camera.SyntheticWidthPx = 4000
		}
		if c.Camera.SyntheticHeightPx <= 0 {
			c.Camera.SyntheticHeightPx = 3000
		}
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}
	if c.Camera.TimeoutMs < 0 {
		return fmt.Errorf("camera.timeout_ms must be >= 0, got %d", c.Camera.TimeoutMs)
	}

	if c.Storage.PicturesDir == "" {
		c.Storage.PicturesDir = defaultPicturesDir()
	}

	if c.Display.WidthPx < 0 || c.Display.HeightPx < 0 {
		return fmt.Errorf("display size must be positive, got %dx%d", c.Display.WidthPx, c.Display.HeightPx)
	}
	if c.Display.WidthPx == 0 {
		c.Display.WidthPx = 1080 // reasonable default
	}
	if c.Display.HeightPx == 0 {
		c.Display.HeightPx = 1920
	}
	if c.Display.JPEGQuality == 0 {
		c.Display.JPEGQuality = 85
	}
	if c.Display.JPEGQuality < 1 || c.Display.JPEGQuality > 100 {
		return fmt.Errorf("display.jpeg_quality must be between 1 and 100, got %d", c.Display.JPEGQuality)
	}

	if c.Permission.PromptTimeoutMs < 0 {
		return fmt.Errorf("permission.prompt_timeout_ms must be >= 0, got %d", c.Permission.PromptTimeoutMs)
	}
	if c.Permission.PromptTimeoutMs == 0 {
		c.Permission.PromptTimeoutMs = 60000
	}

	if c.Button != nil {
		if c.Button.Pin <= 0 {
			return fmt.Errorf("button.pin must be > 0")
		}
		if c.Button.PollMs <= 0 {
			c.Button.PollMs = 20
		}
		if c.Button.DebounceMs <= 0 {
			c.Button.DebounceMs = 200
		}
	}
	return nil
}

// defaultPicturesDir mirrors an app-private external pictures directory.
func defaultPicturesDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "camplay", "Pictures")
	}
	return filepath.Join(os.TempDir(), "camplay", "Pictures")
}

// CameraTimeout returns the maximum time the camera may run. 0 means no limit.
func (c *Config) CameraTimeout() time.Duration {
	return time.Duration(c.Camera.TimeoutMs) * time.Millisecond
}

// ButtonPoll returns the button polling interval.
func (c *Config) ButtonPoll() time.Duration {
	if c.Button == nil {
		return 0
	}
	return time.Duration(c.Button.PollMs) * time.Millisecond
}

// ButtonDebounce returns the minimum time between two accepted presses.
func (c *Config) ButtonDebounce() time.Duration {
	if c.Button == nil {
		return 0
	}
	return time.Duration(c.Button.DebounceMs) * time.Millisecond
}

// PromptTimeout returns how long a web permission prompt waits for an answer.
func (c *Config) PromptTimeout() time.Duration {
	return time.Duration(c.Permission.PromptTimeoutMs) * time.Millisecond
}
