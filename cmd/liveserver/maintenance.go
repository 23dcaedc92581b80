package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/liveframe/live/internal/envconfig"
	"github.com/liveframe/live/pkg/signature"
	"github.com/liveframe/live/pkg/upload"
)

// keysCmd inspects the current signing key state without starting the
// gateway: useful for confirming STATE_SECRET/KEY_ROTATION_INTERVAL
// produce the key id an operator expects before cutting it over.
func keysCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Print the current signing key id and rotation settings",
		Long: `keys loads the same environment configuration serve would
use and reports the derived signing key id plus the rotation and
retention settings in effect, without starting the gateway.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysInspect(envFile)
		},
	}

	cmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "Path to a .env file of runtime configuration")
	return cmd
}

func runKeysInspect(envFile string) error {
	env, err := envconfig.Load(envFile)
	if err != nil {
		return fmt.Errorf("liveserver: %w", err)
	}

	sigCfg := signature.DefaultConfig()
	sigCfg.KeyRotationInterval = env.KeyRotationInterval
	sigCfg.MaxKeyAge = env.MaxKeyAge
	sigCfg.KeyRetentionCount = env.KeyRetentionCount
	signer := signature.New(env.StateSecret, sigCfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	fmt.Printf("rotation interval: %s\n", sigCfg.KeyRotationInterval)
	fmt.Printf("max key age:       %s\n", sigCfg.MaxKeyAge)
	fmt.Printf("retention count:   %d\n", sigCfg.KeyRetentionCount)
	fmt.Printf("backups tracked:   %d (sample component)\n", signer.Backups("sample"))
	probe, err := signer.Sign("sample", "sample", map[string]any{}, 1, signature.Options{})
	if err != nil {
		return fmt.Errorf("liveserver: %w", err)
	}
	fmt.Printf("signing key id:    %s\n", probe.KeyID)
	return nil
}

// sweepUploadsCmd runs DiskStore.Cleanup over the upload directory, so an
// operator can dry-run or force it from a cron job. A running gateway
// never calls DiskStore.Cleanup; its 5-minute upload sweep only drops
// idle in-progress uploads from memory.
func sweepUploadsCmd() *cobra.Command {
	var (
		uploadDir string
		maxAge    time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep-uploads",
		Short: "Remove old files from the upload directory",
		Long: `sweep-uploads walks the upload directory and removes every file
(not subdirectory) older than max-age. It does not tell finalized uploads
apart from abandoned ones: finalized uploads in that directory older than
max-age are removed too. With --dry-run it reports what would be removed
without deleting anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweepUploads(uploadDir, maxAge, dryRun)
		},
	}

	cmd.Flags().StringVar(&uploadDir, "upload-dir", "./uploads", "Directory to sweep")
	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove files older than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "Report what would be removed without deleting")

	return cmd
}

func runSweepUploads(uploadDir string, maxAge time.Duration, dryRun bool) error {
	if dryRun {
		entries, err := os.ReadDir(uploadDir)
		if err != nil {
			return fmt.Errorf("liveserver: reading upload dir: %w", err)
		}
		cutoff := time.Now().Add(-maxAge)
		candidates := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				candidates++
				fmt.Printf("would remove: %s (modified %s)\n", entry.Name(), info.ModTime())
			}
		}
		fmt.Printf("%d file(s) would be removed\n", candidates)
		return nil
	}

	store, err := upload.NewDiskStore(uploadDir, 0)
	if err != nil {
		return fmt.Errorf("liveserver: %w", err)
	}
	if err := store.Cleanup(maxAge); err != nil {
		return fmt.Errorf("liveserver: sweep: %w", err)
	}
	fmt.Println("sweep complete")
	return nil
}
