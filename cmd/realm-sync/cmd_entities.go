package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/review"
)

func entitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entities",
		Aliases: []string{"entity"},
		Short:   "Review the characters, places and things extracted into canon",
	}

	cmd.AddCommand(
		entitiesListCmd(),
		entitiesSimilarCmd(),
		entitiesCreateCmd(),
		entitiesConfirmCmd(),
		entitiesRejectCmd(),
		entitiesMergeCmd(),
		entitiesRemoveCmd(),
	)

	return cmd
}

func printEntities(list []models.Entity) error {
	if outputJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No entities found.")
		return nil
	}
	for i := range list {
		e := &list[i]
		fmt.Printf("%-36s  %-9s  %-9s  %-24s  %s\n", e.ID, e.Status, e.Type, truncate(e.Name, 24), strings.Join(e.Aliases, ", "))
	}
	return nil
}

func entitiesListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("entities list: %w", err)
			}
			defer cleanup()

			list, err := svc.Entities.List(cmd.Context(), caller(), args[0], models.EntityStatus(status))
			if err != nil {
				return fmt.Errorf("entities list: %w", err)
			}
			return printEntities(list)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending or confirmed")
	return cmd
}

func entitiesSimilarCmd() *cobra.Command {
	var exclude string

	cmd := &cobra.Command{
		Use:   "similar <project-id> <name>",
		Short: "Find entities whose name or alias overlaps name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("entities similar: %w", err)
			}
			defer cleanup()

			list, err := svc.Resolver.FindSimilar(cmd.Context(), caller(), args[0], args[1], exclude)
			if err != nil {
				return fmt.Errorf("entities similar: %w", err)
			}
			return printEntities(list)
		},
	}

	cmd.Flags().StringVar(&exclude, "exclude", "", "entity id to leave out")
	return cmd
}

func entitiesCreateCmd() *cobra.Command {
	var (
		entityType  string
		description string
		aliases     []string
		confirmed   bool
	)

	cmd := &cobra.Command{
		Use:   "create <project-id> <name>",
		Short: "Add an entity by hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}
			defer cleanup()

			in := review.CreateEntityInput{
				ProjectID:   args[0],
				Name:        args[1],
				Type:        models.EntityType(entityType),
				Description: description,
				Aliases:     aliases,
			}
			if confirmed {
				in.Status = models.EntityStatusConfirmed
			}
			e, err := svc.Entities.Create(cmd.Context(), caller(), in)
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}
			if outputJSON {
				return printJSON(e)
			}
			fmt.Printf("Created %s %s (%s)\n", e.Type, e.ID, e.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "type", string(models.EntityTypeCharacter), "character, location, item, concept or event")
	cmd.Flags().StringVar(&description, "description", "", "short description")
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "alternate name (repeatable)")
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "create directly as confirmed canon")
	return cmd
}

func entitiesConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <entity-id>",
		Short: "Confirm a pending entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("entities confirm: %w", err)
			}
			defer cleanup()

			e, err := svc.Entities.Confirm(cmd.Context(), caller(), args[0])
			if err != nil {
				return fmt.Errorf("entities confirm: %w", err)
			}
			if outputJSON {
				return printJSON(e)
			}
			fmt.Printf("Confirmed %s (%s)\n", e.Name, e.ID)
			return nil
		},
	}
}

func entitiesRejectCmd() *cobra.Command {
	return entityRemovalCmd("reject", "Reject an entity, deleting it and its facts", true)
}

func entitiesRemoveCmd() *cobra.Command {
	return entityRemovalCmd("remove", "Delete an entity and its facts", false)
}

// entityRemovalCmd builds reject and remove. Both delete the entity together with
// every fact attached to it.
func entityRemovalCmd(verb, short string, reject bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <entity-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("entities %s: %w", verb, err)
			}
			defer cleanup()

			var rm *review.Removal
			if reject {
				rm, err = svc.Entities.Reject(cmd.Context(), caller(), args[0])
			} else {
				rm, err = svc.Entities.Remove(cmd.Context(), caller(), args[0])
			}
			if err != nil {
				return fmt.Errorf("entities %s: %w", verb, err)
			}
			if outputJSON {
				return printJSON(rm)
			}
			fmt.Printf("Deleted entity %s and %d fact(s)\n", rm.EntityID, rm.FactsDeleted)
			return nil
		},
	}
}

func entitiesMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source-id> <target-id>",
		Short: "Merge the source entity into the target",
		Long: `Folds the source entity into the target: the source name and aliases become
target aliases, the source's facts move to the target and the source is deleted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("entities merge: %w", err)
			}
			defer cleanup()

			e, err := svc.Entities.Merge(cmd.Context(), caller(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("entities merge: %w", err)
			}
			if outputJSON {
				return printJSON(e)
			}
			fmt.Printf("Merged into %s (%s); aliases: %s\n", e.Name, e.ID, strings.Join(e.Aliases, ", "))
			return nil
		},
	}
}
