package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/projects"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects",
	}
	cmd.AddCommand(
		projectCreateCmd(),
		projectListCmd(),
		projectStatsCmd(),
		projectReconcileCmd(),
		projectDeleteCmd(),
	)
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var (
		description string
		projectType string
		reveal      bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("project create: %w", err)
			}
			defer cleanup()

			p, err := svc.Projects.Create(cmd.Context(), caller(), projects.CreateProjectInput{
				Name:            args[0],
				Description:     description,
				Type:            models.ProjectType(projectType),
				RevealToPlayers: reveal,
			})
			if err != nil {
				return fmt.Errorf("project create: %w", err)
			}
			if outputJSON {
				return printJSON(p)
			}
			fmt.Printf("Created project %s (%s)\n", p.ID, p.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "project description")
	cmd.Flags().StringVar(&projectType, "type", "general", "project type: general or ttrpg")
	cmd.Flags().BoolVar(&reveal, "reveal-to-players", false, "allow revealing entities to players (ttrpg only)")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("project list: %w", err)
			}
			defer cleanup()

			list, err := svc.Projects.List(cmd.Context(), caller())
			if err != nil {
				return fmt.Errorf("project list: %w", err)
			}
			if outputJSON {
				return printJSON(list)
			}
			if len(list) == 0 {
				fmt.Println("No projects found.")
				return nil
			}
			for i := range list {
				p := &list[i]
				st := p.StatsOrZero()
				fmt.Printf("%-36s  %-8s  %-24s  docs=%d entities=%d facts=%d\n",
					p.ID, p.Type, truncate(p.Name, 24), st.DocumentCount, st.EntityCount, st.FactCount)
			}
			return nil
		},
	}
}

func projectStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <project-id>",
		Short: "Show a project's counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("project stats: %w", err)
			}
			defer cleanup()

			st, err := svc.Projects.Stats(cmd.Context(), caller(), args[0])
			if err != nil {
				return fmt.Errorf("project stats: %w", err)
			}
			if outputJSON {
				return printJSON(st)
			}
			fmt.Printf("Documents: %d\n", st.DocumentCount)
			fmt.Printf("Entities:  %d\n", st.EntityCount)
			fmt.Printf("Facts:     %d\n", st.FactCount)
			fmt.Printf("Alerts:    %d\n", st.AlertCount)
			fmt.Printf("Notes:     %d\n", st.NoteCount)
			return nil
		},
	}
}

func projectReconcileCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile <project-id>",
		Short: "Recount a project's counters from its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("project reconcile: %w", err)
			}
			defer cleanup()

			rep, err := svc.Projects.Reconcile(cmd.Context(), caller(), args[0], dryRun)
			if err != nil {
				return fmt.Errorf("project reconcile: %w", err)
			}
			if outputJSON {
				return printJSON(rep)
			}
			if !rep.Drifted {
				fmt.Println("Counters are accurate.")
				return nil
			}
			fmt.Printf("Before: docs=%d entities=%d facts=%d\n", rep.Before.DocumentCount, rep.Before.EntityCount, rep.Before.FactCount)
			fmt.Printf("After:  docs=%d entities=%d facts=%d\n", rep.After.DocumentCount, rep.After.EntityCount, rep.After.FactCount)
			if dryRun {
				fmt.Println("(dry run, no changes applied)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without writing")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project with all of its documents, entities and facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("project delete: %w", err)
			}
			defer cleanup()

			if err := svc.Projects.Delete(cmd.Context(), caller(), args[0]); err != nil {
				return fmt.Errorf("project delete: %w", err)
			}
			fmt.Printf("Deleted project %s\n", args[0])
			return nil
		},
	}
}
