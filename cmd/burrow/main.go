package main

import (
	"fmt"
	"os"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - reservation allocation for videoconference resources",
	Long: `Burrow allocates rooms, aliases and devices to reservation requests
without double-booking, and keeps the allocations in line with the
requests as they are modified, reverted and deleted.

"burrow serve" runs a node. The other commands open the data directory
directly and cannot run while a node is serving it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Init(cfg.Log)
		metrics.SetVersion(Version)
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.String("data-dir", "", "Data directory (overrides the configuration)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Log in JSON")
	flags.StringP("user", "u", defaultUser(), "User the command acts as")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(resourceCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// loadConfig reads the configuration file and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("data-dir") {
		loaded.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		loaded.Log.Level = log.Level(level)
	}
	if flags.Changed("log-json") {
		loaded.Log.JSONOutput, _ = flags.GetBool("log-json")
	}
	applyServeFlags(cmd, loaded)
	return loaded, loaded.Validate()
}

func defaultUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "admin"
}

func principal(cmd *cobra.Command) string {
	user, _ := cmd.Flags().GetString("user")
	return user
}
