package models

import "time"

// FactStatus is the review state of a fact.
type FactStatus string

const (
	FactStatusPending   FactStatus = "pending"
	FactStatusConfirmed FactStatus = "confirmed"
	FactStatusRejected  FactStatus = "rejected"
)

// IsValid returns true if the status is recognized.
func (s FactStatus) IsValid() bool {
	switch s {
	case FactStatusPending, FactStatusConfirmed, FactStatusRejected:
		return true
	}
	return false
}

// Counted reports whether a fact in this status contributes to a project's fact count.
func (s FactStatus) Counted() bool {
	return s != FactStatusRejected
}

// Span is a half-open byte range into a document's content.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TemporalBoundType classifies a fact's temporal qualifier.
type TemporalBoundType string

const (
	TemporalPoint    TemporalBoundType = "point"
	TemporalRange    TemporalBoundType = "range"
	TemporalRelative TemporalBoundType = "relative"
)

// IsValid returns true if the temporal bound type is recognized.
func (t TemporalBoundType) IsValid() bool {
	switch t {
	case TemporalPoint, TemporalRange, TemporalRelative:
		return true
	}
	return false
}

// TemporalBound qualifies when a fact holds ("during the Long Night", "after book two").
type TemporalBound struct {
	Type  TemporalBoundType `json:"type"`
	Value string            `json:"value"`
}

// Fact is a subject-predicate-object triple with confidence and evidence.
type Fact struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	EntityID         string         `json:"entity_id,omitempty"`
	DocumentID       string         `json:"document_id,omitempty"`
	Subject          string         `json:"subject"`
	Predicate        string         `json:"predicate"`
	Object           string         `json:"object"`
	Confidence       float64        `json:"confidence"`
	Evidence         string         `json:"evidence,omitempty"`
	EvidencePosition *Span          `json:"evidence_position,omitempty"`
	TemporalBound    *TemporalBound `json:"temporal_bound,omitempty"`
	Status           FactStatus     `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the fact.
func (f Fact) Clone() Fact {
	if f.EvidencePosition != nil {
		span := *f.EvidencePosition
		f.EvidencePosition = &span
	}
	if f.TemporalBound != nil {
		tb := *f.TemporalBound
		f.TemporalBound = &tb
	}
	return f
}
