// Package stats owns the denormalized per-project counters. Every counter change goes
// through Apply inside the caller's transaction; Recount and Reconcile rebuild the
// counters from rows.
package stats

import (
	"context"
	"fmt"

	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

// Delta is a signed change to a project's counters.
type Delta struct {
	Documents int64
	Entities  int64
	Facts     int64
	Alerts    int64
	Notes     int64
}

// IsZero reports whether applying d would change nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Add returns the component-wise sum of d and o.
func (d Delta) Add(o Delta) Delta {
	return Delta{
		Documents: d.Documents + o.Documents,
		Entities:  d.Entities + o.Entities,
		Facts:     d.Facts + o.Facts,
		Alerts:    d.Alerts + o.Alerts,
		Notes:     d.Notes + o.Notes,
	}
}

// Apply adds d to the project's counters. Absent stats start from zero and no counter
// goes below zero.
func Apply(ctx context.Context, tx store.Tx, projectID string, d Delta) error {
	if d.IsZero() {
		return nil
	}
	p, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("applying stats delta: %w", err)
	}
	s := p.StatsOrZero()
	s.DocumentCount = clamp(s.DocumentCount + d.Documents)
	s.EntityCount = clamp(s.EntityCount + d.Entities)
	s.FactCount = clamp(s.FactCount + d.Facts)
	s.AlertCount = clamp(s.AlertCount + d.Alerts)
	s.NoteCount = clamp(s.NoteCount + d.Notes)
	p.Stats = &s
	if err := tx.PutProject(ctx, p); err != nil {
		return fmt.Errorf("applying stats delta: %w", err)
	}
	return nil
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// Recount computes the project's counters from its rows. Alert and note counts have
// no backing rows here and are carried over unchanged.
func Recount(ctx context.Context, tx store.Tx, projectID string) (models.ProjectStats, error) {
	p, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return models.ProjectStats{}, fmt.Errorf("recounting stats: %w", err)
	}
	docs, err := tx.DocumentsByProject(ctx, projectID)
	if err != nil {
		return models.ProjectStats{}, fmt.Errorf("recounting documents: %w", err)
	}
	ents, err := tx.EntitiesByProject(ctx, projectID)
	if err != nil {
		return models.ProjectStats{}, fmt.Errorf("recounting entities: %w", err)
	}
	facts, err := tx.FactsByProject(ctx, projectID)
	if err != nil {
		return models.ProjectStats{}, fmt.Errorf("recounting facts: %w", err)
	}

	prev := p.StatsOrZero()
	out := models.ProjectStats{
		DocumentCount: int64(len(docs)),
		EntityCount:   int64(len(ents)),
		AlertCount:    prev.AlertCount,
		NoteCount:     prev.NoteCount,
	}
	for i := range facts {
		if facts[i].Status.Counted() {
			out.FactCount++
		}
	}
	return out, nil
}

// Report describes one reconciliation.
type Report struct {
	ProjectID string              `json:"project_id"`
	Before    models.ProjectStats `json:"before"`
	After     models.ProjectStats `json:"after"`
	Drifted   bool                `json:"drifted"`
}

// Reconcile recounts a project in one transaction and stores the result when the
// stored counters had drifted. With dryRun nothing is written.
func Reconcile(ctx context.Context, st store.Store, projectID string, dryRun bool) (*Report, error) {
	var rep *Report
	err := st.Update(ctx, func(tx store.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("reconciling stats: %w", err)
		}
		after, err := Recount(ctx, tx, projectID)
		if err != nil {
			return err
		}
		rep = &Report{ProjectID: projectID, Before: p.StatsOrZero(), After: after}
		rep.Drifted = rep.Before != after
		if !rep.Drifted || dryRun {
			return nil
		}
		p.Stats = &after
		return tx.PutProject(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}
