package models

import "time"

// ProjectType selects project-specific behaviour.
type ProjectType string

const (
	ProjectTypeGeneral ProjectType = "general"
	ProjectTypeTTRPG   ProjectType = "ttrpg"
)

// IsValid returns true if the project type is recognized.
func (pt ProjectType) IsValid() bool {
	return pt == ProjectTypeGeneral || pt == ProjectTypeTTRPG
}

// ProjectStats holds the denormalized per-project counters.
type ProjectStats struct {
	DocumentCount int64 `json:"document_count"`
	EntityCount   int64 `json:"entity_count"`
	FactCount     int64 `json:"fact_count"`
	AlertCount    int64 `json:"alert_count"`
	NoteCount     int64 `json:"note_count"`
}

// Project is the root of ownership: every document, entity and fact belongs to one.
type Project struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Type            ProjectType   `json:"type"`
	RevealToPlayers bool          `json:"reveal_to_players,omitempty"`
	Stats           *ProjectStats `json:"stats,omitempty"` // nil until the first counted mutation
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// StatsOrZero returns the project's counters, or all zeros when they were never written.
func (p *Project) StatsOrZero() ProjectStats {
	if p.Stats == nil {
		return ProjectStats{}
	}
	return *p.Stats
}

// Clone returns a deep copy of the project.
func (p Project) Clone() Project {
	if p.Stats != nil {
		s := *p.Stats
		p.Stats = &s
	}
	return p
}
