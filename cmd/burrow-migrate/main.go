package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow-migrate",
	Short: "Maintenance tasks on a stopped burrow data directory",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{Level: log.InfoLevel})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the reservation interval index",
	Long: `Rebuild the reservation interval index from the reservations bucket.

The index is derived data. Rebuild it when conflict checks disagree with
the stored reservations, for example after restoring a partial backup.
The node must be stopped: the database allows a single writer process.`,
	RunE: runReindex,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "./burrow-data", "burrow data directory")

	reindexCmd.Flags().Bool("dry-run", false, "Report index inconsistencies without changing anything")
	reindexCmd.Flags().String("backup", "", "Backup path written before the rebuild (default: <data-dir>/burrow.db.backup)")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	dbPath := filepath.Join(dataDir, "burrow.db")
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database not found at %s: %w", dbPath, err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := log.WithComponent("migrate")
	logger.Info().Str("database", dbPath).Bool("dry_run", dryRun).Msg("Checking reservation index")

	report, err := store.CheckIndex()
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	logger.Info().
		Int("reservations", report.Reservations).
		Int("indexed", report.Indexed).
		Int("missing", report.Missing).
		Int("stale", report.Stale).
		Msg("Index checked")

	if dryRun {
		if report.Consistent() {
			fmt.Println("✓ Index is consistent, nothing to rebuild")
		} else {
			fmt.Printf("[DRY RUN] Would rebuild the index: %d missing, %d stale entries\n", report.Missing, report.Stale)
		}
		return nil
	}

	if backupPath == "" {
		backupPath = dbPath + ".backup"
	}
	if err := store.Backup(backupPath); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	fmt.Printf("✓ Backup created: %s\n", backupPath)

	if err := store.Reindex(); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	report, err = store.CheckIndex()
	if err != nil {
		return fmt.Errorf("failed to verify index: %w", err)
	}
	if !report.Consistent() {
		return fmt.Errorf("index still inconsistent after rebuild: %d missing, %d stale", report.Missing, report.Stale)
	}

	fmt.Printf("✓ Index rebuilt: %d reservations indexed\n", report.Indexed)
	return nil
}
