package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-ytqueue/internal/config"
	"go-ytqueue/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logLevel and logFormat hold the logging flags
var (
	logLevel  string
	logFormat string
)

// outputDirFlag holds the value of the --output-dir flag
var outputDirFlag string

// binaryPathFlag holds the value of the --yt-dlp flag
var binaryPathFlag string

// installFlag holds the value of the --install flag
var installFlag bool

// globalConfig holds the loaded configuration
var globalConfig models.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ytqueue",
	Short: "Queue and download YouTube videos and audio",
	Long: `ytqueue fetches metadata for YouTube videos and playlists, keeps them in a queue
and downloads them concurrently as video or audio with live progress.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&outputDirFlag, "output-dir", "o", "", "Directory to save downloads (overrides config)")
	rootCmd.PersistentFlags().StringVar(&binaryPathFlag, "yt-dlp", "", "Path to the yt-dlp executable (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&installFlag, "install", false, "Download yt-dlp if it is not available")

	// Bound so logging can be set up before the config file is read.
	_ = viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logformat", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadGlobalConfig merges defaults, config file, environment and the flags the user actually set.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if err := config.InitLogging(viper.GetString("loglevel"), viper.GetString("logformat"), nil); err != nil {
		return err
	}

	cfg, err := config.Initialize(collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := config.InitLogging(cfg.LogLevel, cfg.LogFormat, nil); err != nil {
		return err
	}

	globalConfig = cfg
	log.Debugf("[Config] Loaded for command '%s'", cmd.Name())
	return nil
}

// collectFlags turns the flags changed on the command line into config overrides.
func collectFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{
		ConfigFilePath: changedString(cmd, "config", &cfgFile),
		LogLevel:       changedString(cmd, "log-level", &logLevel),
		LogFormat:      changedString(cmd, "log-format", &logFormat),
		OutputDir:      changedString(cmd, "output-dir", &outputDirFlag),
		Engine: &config.CliEngineFlags{
			BinaryPath:     changedString(cmd, "yt-dlp", &binaryPathFlag),
			AutoInstall:    changedBool(cmd, "install", &installFlag),
			NativePlaylist: changedBool(cmd, "native-playlist", &nativePlaylistFlag),
		},
		Download: &config.CliDownloadFlags{
			Kind:             changedString(cmd, "kind", &kindFlag),
			Quality:          changedString(cmd, "quality", &qualityFlag),
			Container:        changedString(cmd, "format", &containerFlag),
			Mode:             changedString(cmd, "mode", &modeFlag),
			OutputTemplate:   changedString(cmd, "output-template", &outputTemplateFlag),
			SkipConfirmation: changedBool(cmd, "yes", &yesFlag),
		},
		History: &config.CliHistoryFlags{
			Enabled:   changedBool(cmd, "history", &historyFlag),
			HashFiles: changedBool(cmd, "hash", &hashFlag),
		},
		Display: &config.CliDisplayFlags{
			Style: changedString(cmd, "display", &displayFlag),
		},
	}
	if f := cmd.Flags().Lookup("no-color"); f != nil && f.Changed {
		color := !noColorFlag
		flags.Display.Color = &color
	}
	return flags
}

func changedString(cmd *cobra.Command, name string, value *string) *string {
	if f := cmd.Flags().Lookup(name); f == nil || !f.Changed {
		return nil
	}
	return value
}

func changedBool(cmd *cobra.Command, name string, value *bool) *bool {
	if f := cmd.Flags().Lookup(name); f == nil || !f.Changed {
		return nil
	}
	return value
}
