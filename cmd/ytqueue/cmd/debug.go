package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"go-ytqueue/internal/downloader"
	"go-ytqueue/internal/models"
)

var showConfigFormat string

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugShowConfigCmd)
	debugCmd.AddCommand(debugFormatCmd)

	debugShowConfigCmd.Flags().StringVar(&showConfigFormat, "format", "json", "Output format: json or toml")
	addDownloadFlags(debugFormatCmd)
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging utilities (not for general use)",
	Long:  `Contains helper commands for debugging application behavior, like inspecting configuration or engine options.`,
}

// --- debug show-config ---

var debugShowConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the fully loaded configuration",
	Long: `Loads configuration via flags, environment and config file (respecting precedence)
and prints the final resulting configuration. Useful for verifying how settings are merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfig(cmd.OutOrStdout(), globalConfig, showConfigFormat)
	},
}

func writeConfig(out io.Writer, cfg models.Config, format string) error {
	switch strings.ToLower(format) {
	case "toml":
		return toml.NewEncoder(out).Encode(cfg)
	case "json", "":
		jsonBytes, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		_, err = fmt.Fprintln(out, string(jsonBytes))
		return err
	default:
		return fmt.Errorf("%w: unknown format %q (use json or toml)", models.ErrInvalidInput, format)
	}
}

// --- debug engine-options ---

var debugFormatCmd = &cobra.Command{
	Use:   "engine-options VIDEO_ID",
	Short: "Print the engine options a download of VIDEO_ID would use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := downloadParams(globalConfig)
		if err != nil {
			return err
		}
		record := models.VideoRecord{ID: args[0], Title: args[0]}
		opts := downloader.BuildOptions(record, params, downloader.TaskOptions{
			ExtractorArgs: globalConfig.Engine.ExtractorArgs,
			UserAgent:     globalConfig.Engine.UserAgent,
		})
		jsonBytes, err := json.MarshalIndent(opts, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
		return err
	},
}
