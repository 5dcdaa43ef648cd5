package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func lifecycleCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Run maintenance: purge the cache, reconcile counters, find stuck documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("lifecycle: %w", err)
			}
			defer cleanup()

			report, err := svc.Lifecycle.Run(cmd.Context(), dryRun)
			if err != nil {
				return fmt.Errorf("lifecycle: running maintenance: %w", err)
			}
			if outputJSON {
				return printJSON(report)
			}

			fmt.Printf("Lifecycle report:\n")
			fmt.Printf("  Cache purged:        %d\n", report.CachePurged)
			fmt.Printf("  Projects reconciled: %d\n", report.ProjectsReconciled)
			fmt.Printf("  Projects drifted:    %d\n", report.ProjectsDrifted)
			for _, id := range report.StuckDocuments {
				fmt.Printf("  stuck in processing: %s\n", id)
			}
			if dryRun {
				fmt.Println("  (dry run, no changes applied)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview changes without applying")
	return cmd
}
