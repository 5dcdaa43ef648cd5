package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/review"
)

func factsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "facts",
		Aliases: []string{"fact"},
		Short:   "Review extracted facts",
	}
	cmd.AddCommand(
		factsListCmd(),
		factTransitionCmd("confirm", "Confirm a fact as canon"),
		factTransitionCmd("reject", "Mark a fact as rejected"),
		factsRemoveCmd(),
	)
	return cmd
}

func factsListCmd() *cobra.Command {
	var filter review.FactFilter
	var status string

	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("facts list: %w", err)
			}
			defer cleanup()

			filter.Status = models.FactStatus(status)
			list, err := svc.Facts.List(cmd.Context(), caller(), args[0], filter)
			if err != nil {
				return fmt.Errorf("facts list: %w", err)
			}
			if outputJSON {
				return printJSON(list)
			}
			if len(list) == 0 {
				fmt.Println("No facts found.")
				return nil
			}
			for i := range list {
				f := &list[i]
				fmt.Printf("%-36s  %-9s  %.2f  %s\n", f.ID, f.Status, f.Confidence,
					truncate(f.Subject+" / "+f.Predicate+" / "+f.Object, 80))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.EntityID, "entity", "", "only facts about this entity")
	cmd.Flags().StringVar(&filter.DocumentID, "document", "", "only facts from this document")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, confirmed or rejected")
	return cmd
}

func factTransitionCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <fact-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("facts %s: %w", verb, err)
			}
			defer cleanup()

			var f *models.Fact
			if verb == "confirm" {
				f, err = svc.Facts.Confirm(cmd.Context(), caller(), args[0])
			} else {
				f, err = svc.Facts.Reject(cmd.Context(), caller(), args[0])
			}
			if err != nil {
				return fmt.Errorf("facts %s: %w", verb, err)
			}
			if outputJSON {
				return printJSON(f)
			}
			fmt.Printf("Fact %s is now %s\n", f.ID, f.Status)
			return nil
		},
	}
}

func factsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <fact-id>",
		Short: "Delete a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("facts remove: %w", err)
			}
			defer cleanup()

			if err := svc.Facts.Remove(cmd.Context(), caller(), args[0]); err != nil {
				return fmt.Errorf("facts remove: %w", err)
			}
			fmt.Printf("Deleted fact %s\n", args[0])
			return nil
		},
	}
}
