// cache.go implements "agimectl cache" maintenance of the local
// SQLite cache and event log.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agime-dev/agimectl/internal/cleanup"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stale cached sessions and old log events",
	RunE:  runCachePrune,
}

var (
	pruneDays   int
	pruneDryRun bool
)

func init() {
	cachePruneCmd.Flags().IntVar(&pruneDays, "days", 30, "Prune entries older than this many days")
	cachePruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Only report what would be removed")
	cacheCmd.AddCommand(cachePruneCmd)
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	pruned, err := cleanup.PruneSessions(deps.cache, pruneDays, pruneDryRun)
	if err != nil {
		return err
	}

	dropped := 0
	if deps.logger != nil {
		dropped, err = cleanup.TrimLog(deps.logger.Path(), pruneDays, pruneDryRun)
		if err != nil {
			return err
		}
	}

	verb := "Removed"
	if pruneDryRun {
		verb = "Would remove"
	}
	fmt.Printf("%s %d cached sessions and %d log events older than %d days\n", verb, len(pruned), dropped, pruneDays)
	for _, id := range pruned {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
