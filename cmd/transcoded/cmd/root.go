// Package cmd implements the CLI commands for transcoded.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediaspool/transcoded/internal/version"
)

// configFile is the --config flag value shared by all commands.
var configFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "transcoded",
	Short:   "Video transcoding service",
	Version: version.Short(),
	Long: `transcoded is a video transcoding service.

It accepts chunked video uploads over HTTP, assembles them into staged
source files, and transcodes them into standard renditions (1080p, 720p,
480p, 360p) with ffmpeg on a bounded worker pool. Job progress streams to
clients over Server-Sent Events, and terminal jobs can be archived to a
database for later inspection.

Configuration is read from a YAML file and the environment. Environment
variables use the TRANSCODED_ prefix with underscores for nesting:
  TRANSCODED_SERVER_PORT              - HTTP listen port
  TRANSCODED_STORAGE_STAGING_DIR      - Staged upload directory
  TRANSCODED_TRANSCODE_WORKER_POOL_SIZE - Concurrent encode limit
  TRANSCODED_HISTORY_ENABLED          - Archive terminal jobs

Example:
  TRANSCODED_SERVER_PORT=9090 transcoded serve`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default searches ., ./configs, /etc/transcoded)")
}
