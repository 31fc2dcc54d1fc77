// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "gocw-demo"
	ConfigType    = "yaml"
	DefaultConfig = `# gocw-demo configuration

# Audio device settings (listen side: capture -> Goertzel -> receiver)
device_index: -1        # -1 for default device
sample_rate: 48000      # Audio sample rate in Hz
channels: 1             # Number of channels (1=mono)
buffer_size: 1024       # Audio buffer size

# Tone detection
tone_frequency: 600     # CW tone frequency in Hz (also used as the sidetone pitch)
block_size: 512         # Goertzel block size (samples per detection window)
overlap_pct: 50         # Block overlap percentage (0-99), higher = smoother but more CPU

# Detection thresholds
threshold: 0.4          # Detection threshold (0.0-1.0), tone magnitude must exceed this
hysteresis: 5           # Consecutive blocks required to confirm state change (reduces noise)
agc_enabled: true       # Enable automatic gain control (normalizes input levels)
agc_decay: 0.9995       # AGC peak decay rate per sample
agc_attack: 0.1         # AGC attack rate (0.0-1.0), how fast to respond to louder signals
agc_warmup_blocks: 10   # Blocks processed before detection is enabled, to calibrate AGC

# gocw timing (send + receive)
send_speed: 18          # Send speed in WPM
receive_speed: 12       # Initial receive speed estimate in WPM
adaptive: true          # Track the sender's actual speed on receive
volume: 70              # Sidetone volume percent
gap: 0                  # Extra inter-character gap, in dots
tolerance: 50            # Receive timing tolerance percent
weighting: 50           # Send timing weighting percent
curtis_b: false         # Iambic keyer mode: true selects Curtis B

# Sidetone backend
backend: "pcm"          # "pcm" (malgo playback) or "console" (Linux KIOCSOUND)
console_device: "/dev/console"

# Demo convenience: if non-empty, sent once via the library's Sender at
# startup before the capture/receive loop begins.
send_text: ""

# Output
debug: false            # Enable debug output
`
)

// Settings holds all gocw-demo configuration.
type Settings struct {
	// Audio device settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Tone detection
	ToneFrequency float64 `mapstructure:"tone_frequency"`
	BlockSize     int     `mapstructure:"block_size"`
	OverlapPct    int     `mapstructure:"overlap_pct"`

	// Detection thresholds
	Threshold       float64 `mapstructure:"threshold"`
	Hysteresis      int     `mapstructure:"hysteresis"`
	AGCEnabled      bool    `mapstructure:"agc_enabled"`
	AGCDecay        float64 `mapstructure:"agc_decay"`
	AGCAttack       float64 `mapstructure:"agc_attack"`
	AGCWarmupBlocks int     `mapstructure:"agc_warmup_blocks"`

	// gocw timing
	SendSpeed    int  `mapstructure:"send_speed"`
	ReceiveSpeed int  `mapstructure:"receive_speed"`
	Adaptive     bool `mapstructure:"adaptive"`
	Volume       int  `mapstructure:"volume"`
	Gap          int  `mapstructure:"gap"`
	Tolerance    int  `mapstructure:"tolerance"`
	Weighting    int  `mapstructure:"weighting"`
	CurtisB      bool `mapstructure:"curtis_b"`

	// Sidetone backend
	Backend       string `mapstructure:"backend"`
	ConsoleDevice string `mapstructure:"console_device"`

	// Demo convenience
	SendText string `mapstructure:"send_text"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/gocw-demo/
func Init() error {
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 1024)
	viper.SetDefault("tone_frequency", 600)
	viper.SetDefault("block_size", 512)
	viper.SetDefault("overlap_pct", 50)
	viper.SetDefault("threshold", 0.4)
	viper.SetDefault("hysteresis", 5)
	viper.SetDefault("agc_enabled", true)
	viper.SetDefault("agc_decay", 0.9995)
	viper.SetDefault("agc_attack", 0.1)
	viper.SetDefault("agc_warmup_blocks", 10)
	viper.SetDefault("send_speed", 18)
	viper.SetDefault("receive_speed", 12)
	viper.SetDefault("adaptive", true)
	viper.SetDefault("volume", 70)
	viper.SetDefault("gap", 0)
	viper.SetDefault("tolerance", 50)
	viper.SetDefault("weighting", 50)
	viper.SetDefault("curtis_b", false)
	viper.SetDefault("backend", "pcm")
	viper.SetDefault("console_device", "/dev/console")
	viper.SetDefault("send_text", "")
	viper.SetDefault("debug", false)

	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings.
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges.
func (s *Settings) Validate() error {
	var errs []error

	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}
	if s.BufferSize&(s.BufferSize-1) != 0 {
		errs = append(errs, fmt.Errorf("buffer_size should be a power of 2, got %d", s.BufferSize))
	}

	if s.ToneFrequency < 100 || s.ToneFrequency > 3000 {
		errs = append(errs, fmt.Errorf("tone_frequency must be between 100 and 3000 Hz, got %v", s.ToneFrequency))
	}
	if s.BlockSize < 32 || s.BlockSize > 4096 {
		errs = append(errs, fmt.Errorf("block_size must be between 32 and 4096, got %d", s.BlockSize))
	}
	if s.BlockSize&(s.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("block_size should be a power of 2, got %d", s.BlockSize))
	}
	if s.OverlapPct < 0 || s.OverlapPct > 99 {
		errs = append(errs, fmt.Errorf("overlap_pct must be between 0 and 99, got %d", s.OverlapPct))
	}

	if s.Threshold < 0.0 || s.Threshold > 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be between 0.0 and 1.0, got %v", s.Threshold))
	}
	if s.Hysteresis < 1 || s.Hysteresis > 50 {
		errs = append(errs, fmt.Errorf("hysteresis must be between 1 and 50, got %d", s.Hysteresis))
	}
	if s.AGCDecay < 0.99 || s.AGCDecay > 0.99999 {
		errs = append(errs, fmt.Errorf("agc_decay must be between 0.99 and 0.99999, got %v", s.AGCDecay))
	}
	if s.AGCAttack < 0.0 || s.AGCAttack > 1.0 {
		errs = append(errs, fmt.Errorf("agc_attack must be between 0.0 and 1.0, got %v", s.AGCAttack))
	}
	if s.AGCWarmupBlocks < 0 {
		errs = append(errs, fmt.Errorf("agc_warmup_blocks must be non-negative, got %d", s.AGCWarmupBlocks))
	}

	if s.SendSpeed < 5 || s.SendSpeed > 60 {
		errs = append(errs, fmt.Errorf("send_speed must be between 5 and 60, got %d", s.SendSpeed))
	}
	if s.ReceiveSpeed < 5 || s.ReceiveSpeed > 60 {
		errs = append(errs, fmt.Errorf("receive_speed must be between 5 and 60, got %d", s.ReceiveSpeed))
	}
	if s.Volume < 0 || s.Volume > 100 {
		errs = append(errs, fmt.Errorf("volume must be between 0 and 100, got %d", s.Volume))
	}
	if s.Gap < 0 || s.Gap > 60 {
		errs = append(errs, fmt.Errorf("gap must be between 0 and 60, got %d", s.Gap))
	}
	if s.Tolerance < 0 || s.Tolerance > 100 {
		errs = append(errs, fmt.Errorf("tolerance must be between 0 and 100, got %d", s.Tolerance))
	}
	if s.Weighting < 20 || s.Weighting > 80 {
		errs = append(errs, fmt.Errorf("weighting must be between 20 and 80, got %d", s.Weighting))
	}

	if s.Backend != "pcm" && s.Backend != "console" {
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", "pcm", "console", s.Backend))
	}

	if s.ToneFrequency >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("tone_frequency (%v Hz) must be less than Nyquist frequency (%v Hz)", s.ToneFrequency, s.SampleRate/2))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
