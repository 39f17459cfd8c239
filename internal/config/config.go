package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"go-ytqueue/internal/models"
	"go-ytqueue/internal/paths"
)

// Default values for configuration
const (
	DefaultOutputDir          = "downloads"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultConfigFilePath     = "config.toml"
	DefaultEnvPrefix          = "YTQUEUE"
	DefaultHistoryDatabase    = "history.db"    // Relative to OutputDir if not absolute
	DefaultHistoryIndex       = "history.bleve" // Relative to OutputDir if not absolute
	DefaultFetchTimeoutSec    = 120
	DefaultProgressIntervalMs = 500

	DefaultConfigDownloadKind      = models.KindVideo
	DefaultConfigDownloadQuality   = models.QualityHighest
	DefaultConfigDownloadContainer = "mp4"
	DefaultConfigDownloadMode      = models.ModeBulk

	DefaultConfigDisplayStyle            = "live"
	DefaultConfigDisplayRefreshPerSecond = 10
)

// Display styles
var displayStyles = []string{"live", "bars", "plain"}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("outputdir", DefaultOutputDir)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)

	v.SetDefault("download.kind", DefaultConfigDownloadKind)
	v.SetDefault("download.quality", DefaultConfigDownloadQuality)
	v.SetDefault("download.container", DefaultConfigDownloadContainer)
	v.SetDefault("download.mode", DefaultConfigDownloadMode)
	v.SetDefault("download.outputtemplate", "")
	v.SetDefault("download.skipconfirmation", false)

	v.SetDefault("engine.binarypath", "")
	v.SetDefault("engine.autoinstall", false)
	v.SetDefault("engine.extractorargs", "")
	v.SetDefault("engine.useragent", "")
	v.SetDefault("engine.nativeplaylist", false)
	v.SetDefault("engine.fetchtimeoutsec", DefaultFetchTimeoutSec)
	v.SetDefault("engine.progressintervalms", DefaultProgressIntervalMs)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.databasepath", "")
	v.SetDefault("history.indexpath", "")
	v.SetDefault("history.hashfiles", false)

	v.SetDefault("display.style", DefaultConfigDisplayStyle)
	v.SetDefault("display.refreshpersecond", DefaultConfigDisplayRefreshPerSecond)
	v.SetDefault("display.color", true)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath *string
	LogLevel       *string // --log-level
	LogFormat      *string // --log-format
	OutputDir      *string // --output-dir

	Download *CliDownloadFlags
	Engine   *CliEngineFlags
	History  *CliHistoryFlags
	Display  *CliDisplayFlags
}

type CliDownloadFlags struct {
	Kind             *string // --kind
	Quality          *string // -q
	Container        *string // -f
	Mode             *string // --mode
	OutputTemplate   *string // --output-template
	SkipConfirmation *bool   // --yes
}

type CliEngineFlags struct {
	BinaryPath     *string // --yt-dlp
	AutoInstall    *bool   // --install
	NativePlaylist *bool   // --native-playlist
}

type CliHistoryFlags struct {
	Enabled   *bool // --history
	HashFiles *bool // --hash
}

type CliDisplayFlags struct {
	Style *string // --display
	Color *bool   // --color
}

// Initialize loads configuration based on defaults, config file, environment and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, error) {
	var finalCfg models.Config

	v := viper.New()
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")
	setViperDefaults(v)

	configFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil && *flags.ConfigFilePath != "" {
		configFilePath = *flags.ConfigFilePath
		log.Debugf("[Config] Using config file path from CLI flag: %s", configFilePath)
	}
	v.SetConfigFile(configFilePath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			log.Debugf("[Config] Config file '%s' not found. Using defaults, environment and flags only.", configFilePath)
		default:
			return models.Config{}, fmt.Errorf("reading config file %s: %w", configFilePath, err)
		}
	} else {
		log.Debugf("[Config] Read config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&finalCfg, flags)

	if err := finalize(&finalCfg); err != nil {
		return models.Config{}, err
	}

	log.Debugf("[Config] Final merged config: %+v", finalCfg)
	return finalCfg, nil
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.OutputDir != nil {
		log.Debugf("[Config] Overriding OutputDir from flag: '%s'", *flags.OutputDir)
		cfg.OutputDir = *flags.OutputDir
	}

	if d := flags.Download; d != nil {
		if d.Kind != nil {
			cfg.Download.Kind = *d.Kind
		}
		if d.Quality != nil {
			cfg.Download.Quality = *d.Quality
		}
		if d.Container != nil {
			cfg.Download.Container = *d.Container
		}
		if d.Mode != nil {
			cfg.Download.Mode = *d.Mode
		}
		if d.OutputTemplate != nil {
			cfg.Download.OutputTemplate = *d.OutputTemplate
		}
		if d.SkipConfirmation != nil {
			cfg.Download.SkipConfirmation = *d.SkipConfirmation
		}
		log.Debugf("[Config] Download after CLI overrides: %+v", cfg.Download)
	}

	if e := flags.Engine; e != nil {
		if e.BinaryPath != nil {
			cfg.Engine.BinaryPath = *e.BinaryPath
		}
		if e.AutoInstall != nil {
			cfg.Engine.AutoInstall = *e.AutoInstall
		}
		if e.NativePlaylist != nil {
			cfg.Engine.NativePlaylist = *e.NativePlaylist
		}
	}

	if h := flags.History; h != nil {
		if h.Enabled != nil {
			cfg.History.Enabled = *h.Enabled
		}
		if h.HashFiles != nil {
			cfg.History.HashFiles = *h.HashFiles
		}
	}

	if d := flags.Display; d != nil {
		if d.Style != nil {
			cfg.Display.Style = *d.Style
		}
		if d.Color != nil {
			cfg.Display.Color = *d.Color
		}
	}
}

// finalize derives paths and validates the merged configuration.
func finalize(cfg *models.Config) error {
	if cfg.OutputDir == "" {
		return fmt.Errorf("%w: OutputDir cannot be empty (set via --output-dir flag or OutputDir in config)", models.ErrInvalidInput)
	}
	absOut, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("resolving output directory %s: %w", cfg.OutputDir, err)
	}
	cfg.OutputDir = absOut

	if cfg.History.DatabasePath == "" {
		cfg.History.DatabasePath = DefaultHistoryDatabase
	}
	if !filepath.IsAbs(cfg.History.DatabasePath) {
		cfg.History.DatabasePath = filepath.Join(cfg.OutputDir, cfg.History.DatabasePath)
	}
	if cfg.History.IndexPath == "" {
		cfg.History.IndexPath = DefaultHistoryIndex
	}
	if !filepath.IsAbs(cfg.History.IndexPath) {
		cfg.History.IndexPath = filepath.Join(cfg.OutputDir, cfg.History.IndexPath)
	}

	cfg.Download.Kind = strings.ToLower(cfg.Download.Kind)
	cfg.Download.Mode = strings.ToLower(cfg.Download.Mode)
	cfg.Download.Container = strings.ToLower(cfg.Download.Container)

	// Switching kind without naming a container picks the first container of that kind.
	if cfg.Download.Kind == models.KindAudio && cfg.Download.Container == DefaultConfigDownloadContainer {
		cfg.Download.Container = models.AudioContainers[0]
	}
	if cfg.Download.Kind == models.KindAudio && cfg.Download.Quality == models.QualityHighest {
		cfg.Download.Quality = models.AudioBitrates[0]
	}

	params := models.DownloadParameters{
		Kind:            cfg.Download.Kind,
		Quality:         cfg.Download.Quality,
		Container:       cfg.Download.Container,
		OutputDirectory: cfg.OutputDir,
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if cfg.Download.Mode != models.ModeBulk && cfg.Download.Mode != models.ModeSingle {
		return fmt.Errorf("%w: Download.Mode must be %q or %q, got %q", models.ErrInvalidInput, models.ModeBulk, models.ModeSingle, cfg.Download.Mode)
	}
	if cfg.Download.OutputTemplate != "" {
		probe := paths.TemplateData(models.VideoRecord{ID: "probe", Author: "probe"}, params)
		if _, err := paths.GeneratePath(cfg.Download.OutputTemplate, probe); err != nil {
			return fmt.Errorf("%w: Download.OutputTemplate: %v", models.ErrInvalidInput, err)
		}
	}

	cfg.Display.Style = strings.ToLower(cfg.Display.Style)
	if !containsString(displayStyles, cfg.Display.Style) {
		log.Warnf("[Config] Unknown display style '%s', using '%s'", cfg.Display.Style, DefaultConfigDisplayStyle)
		cfg.Display.Style = DefaultConfigDisplayStyle
	}
	if cfg.Display.RefreshPerSecond <= 0 {
		cfg.Display.RefreshPerSecond = DefaultConfigDisplayRefreshPerSecond
	}
	if cfg.Engine.ProgressIntervalMs <= 0 {
		cfg.Engine.ProgressIntervalMs = DefaultProgressIntervalMs
	}
	if cfg.Engine.FetchTimeoutSec < 0 {
		cfg.Engine.FetchTimeoutSec = 0
	}
	return nil
}

// InitLogging applies level and format to the package-level logrus logger. Logs go to out
// (stderr when nil) so they do not interleave with progress output on stdout.
func InitLogging(level, format string, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return fmt.Errorf("%w: invalid log level %q: %v", models.ErrInvalidInput, level, err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("%w: invalid log format %q (use text or json)", models.ErrInvalidInput, format)
	}
	return nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
