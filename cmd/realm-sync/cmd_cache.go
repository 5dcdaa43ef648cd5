package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/auth"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the extraction response cache",
	}
	cmd.AddCommand(cacheInvalidateCmd(), cachePurgeCmd())
	return cmd
}

func cacheInvalidateCmd() *cobra.Command {
	var (
		promptVersion string
		inputHash     string
	)

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached responses for a prompt version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.RequireAuthenticated(caller()); err != nil {
				return fmt.Errorf("cache invalidate: %w", err)
			}
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("cache invalidate: %w", err)
			}
			defer cleanup()

			if promptVersion == "" {
				promptVersion = svc.PromptVersion
			}
			n, err := svc.Cache.Invalidate(cmd.Context(), promptVersion, inputHash)
			if err != nil {
				return fmt.Errorf("cache invalidate: %w", err)
			}
			if outputJSON {
				return printJSON(map[string]int{"removed": n})
			}
			fmt.Printf("Removed %d cached response(s) for %s\n", n, promptVersion)
			return nil
		},
	}

	cmd.Flags().StringVar(&promptVersion, "prompt-version", "", "prompt version (default: extraction.prompt_version)")
	cmd.Flags().StringVar(&inputHash, "hash", "", "only this chunk hash")
	return cmd
}

func cachePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("cache purge: %w", err)
			}
			defer cleanup()

			n, err := svc.Cache.PurgeExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("cache purge: %w", err)
			}
			if outputJSON {
				return printJSON(map[string]int{"purged": n})
			}
			fmt.Printf("Purged %d expired response(s)\n", n)
			return nil
		},
	}
}
