package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/importer"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/pipeline"
	"github.com/aileks/realm-sync/internal/projects"
)

func documentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "document",
		Aliases: []string{"documents", "doc"},
		Short:   "Add and process source documents",
	}
	cmd.AddCommand(
		documentAddCmd(),
		documentImportCmd(),
		documentListCmd(),
		documentProcessCmd(),
		documentStatusCmd(),
	)
	return cmd
}

func documentAddCmd() *cobra.Command {
	var (
		title  string
		upload bool
		order  int
	)

	cmd := &cobra.Command{
		Use:   "add <project-id> <file>",
		Short: "Add a document from a text or markdown file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("document add: reading file: %w", err)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
			}
			contentType := importer.ContentType(args[1])

			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("document add: %w", err)
			}
			defer cleanup()

			var d *models.Document
			if upload {
				d, err = svc.Documents.CreateFromFile(cmd.Context(), caller(), args[0], title, contentType, data)
			} else {
				in := projects.CreateDocumentInput{
					ProjectID:   args[0],
					Title:       title,
					Content:     string(data),
					ContentType: contentType,
				}
				if cmd.Flags().Changed("order") {
					in.OrderIndex = &order
				}
				d, err = svc.Documents.Create(cmd.Context(), caller(), in)
			}
			if err != nil {
				return fmt.Errorf("document add: %w", err)
			}
			if outputJSON {
				return printJSON(d)
			}
			fmt.Printf("Added document %s (%q, %d words)\n", d.ID, d.Title, d.WordCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "document title (default: file name)")
	cmd.Flags().BoolVar(&upload, "upload", false, "store the body in blob storage instead of inline")
	cmd.Flags().IntVar(&order, "order", 0, "position within the project (default: append)")
	return cmd
}

func documentImportCmd() *cobra.Command {
	var (
		upload  bool
		process bool
	)

	cmd := &cobra.Command{
		Use:   "import <project-id> <dir>",
		Short: "Add every markdown and text file under dir, in path order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			svc, cleanup, err := openServices(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("document import: %w", err)
			}
			defer cleanup()

			res, err := importer.New(svc.Documents, upload, logger).ImportDirectory(cmd.Context(), caller(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("document import: %w", err)
			}

			var reports []*pipeline.Report
			var processErr error
			if process {
				for i := range res.Documents {
					rep, err := svc.Processor.ProcessDocument(cmd.Context(), caller(), res.Documents[i].ID)
					if rep != nil {
						reports = append(reports, rep)
					}
					if err != nil {
						processErr = fmt.Errorf("document import: processing %s: %w", res.Documents[i].Title, err)
						break
					}
				}
			}

			if outputJSON {
				if err := printJSON(map[string]any{"import": res, "processed": reports}); err != nil {
					return err
				}
				return processErr
			}
			for i := range res.Documents {
				d := &res.Documents[i]
				fmt.Printf("Added %s  %3d  %s\n", d.ID, d.OrderIndex, d.Title)
			}
			for _, f := range res.Failed {
				fmt.Printf("Skipped %s: %s\n", f.Path, f.Error)
			}
			for _, rep := range reports {
				printProcessReport(rep)
			}
			return processErr
		},
	}

	cmd.Flags().BoolVar(&upload, "upload", false, "store bodies in blob storage instead of inline")
	cmd.Flags().BoolVar(&process, "process", false, "run extraction on each imported document")
	return cmd
}

func documentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("document list: %w", err)
			}
			defer cleanup()

			list, err := svc.Documents.List(cmd.Context(), caller(), args[0])
			if err != nil {
				return fmt.Errorf("document list: %w", err)
			}
			if outputJSON {
				return printJSON(list)
			}
			if len(list) == 0 {
				fmt.Println("No documents found.")
				return nil
			}
			for i := range list {
				d := &list[i]
				fmt.Printf("%-36s  %3d  %-10s  %6d  %s\n", d.ID, d.OrderIndex, d.ProcessingStatus, d.WordCount, truncate(d.Title, 40))
			}
			return nil
		},
	}
}

func documentProcessCmd() *cobra.Command {
	var retry bool
	cmd := &cobra.Command{
		Use:   "process <document-id>",
		Short: "Extract entities and facts from a document",
		Long: `Splits the document into chunks, sends each to Claude (or the response cache),
and materializes the results as pending entities and facts. A document left in
processing by a failed run is rejected until it is processed with --retry; cached
chunks cost nothing on the second pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("document process: %w", err)
			}
			defer cleanup()

			process := svc.Processor.ProcessDocument
			if retry {
				process = svc.Processor.Retry
			}
			rep, err := process(cmd.Context(), caller(), args[0])
			if rep != nil {
				if outputJSON {
					if printErr := printJSON(rep); printErr != nil {
						return printErr
					}
				} else {
					printProcessReport(rep)
				}
			}
			if err != nil {
				return fmt.Errorf("document process: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", false, "restart a document left in processing by a failed run")
	return cmd
}

func printProcessReport(rep *pipeline.Report) {
	fmt.Printf("Document %s: %s\n", rep.DocumentID, rep.Status)
	fmt.Printf("  Chunks:             %d\n", rep.Chunks)
	fmt.Printf("  Entities created:   %d\n", rep.Summary.EntitiesCreated)
	fmt.Printf("  Entities matched:   %d\n", rep.Summary.EntitiesMatched)
	fmt.Printf("  Facts created:      %d\n", rep.Summary.FactsCreated)
	fmt.Printf("  Facts skipped:      %d\n", rep.Summary.FactsSkipped)
	if rep.StalePendingReplaced > 0 {
		fmt.Printf("  Pending replaced:   %d\n", rep.StalePendingReplaced)
	}
	for _, f := range rep.Failed {
		fmt.Printf("  chunk %d failed: %s\n", f.Index, f.Error)
	}
}

func documentStatusCmd() *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show or set a document's processing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context(), newLogger())
			if err != nil {
				return fmt.Errorf("document status: %w", err)
			}
			defer cleanup()

			var d *models.Document
			if set != "" {
				status := models.ProcessingStatus(set)
				if !status.IsValid() {
					return errors.New("document status: --set must be pending, processing or completed")
				}
				d, err = svc.Documents.UpdateProcessingStatus(cmd.Context(), caller(), args[0], status)
			} else {
				d, err = svc.Documents.Get(cmd.Context(), caller(), args[0])
			}
			if err != nil {
				return fmt.Errorf("document status: %w", err)
			}
			if outputJSON {
				return printJSON(d)
			}
			fmt.Printf("%s  %s\n", d.ID, d.ProcessingStatus)
			if d.ProcessedAt != nil {
				fmt.Printf("Processed: %s\n", d.ProcessedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&set, "set", "", "new status: pending, processing or completed")
	return cmd
}
