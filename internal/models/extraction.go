package models

import "time"

// ExtractedEntity is an entity mention as returned by the extraction model.
type ExtractedEntity struct {
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Description string     `json:"description,omitempty"`
	Aliases     []string   `json:"aliases,omitempty"`
	Status      string     `json:"status,omitempty"` // model hint: "new" or "existing"
}

// ExtractedFact is a fact as returned by the extraction model.
type ExtractedFact struct {
	EntityName       string         `json:"entityName"`
	Subject          string         `json:"subject"`
	Predicate        string         `json:"predicate"`
	Object           string         `json:"object"`
	Confidence       float64        `json:"confidence"`
	Evidence         string         `json:"evidence"`
	EvidencePosition *Span          `json:"evidencePosition,omitempty"`
	TemporalBound    *TemporalBound `json:"temporalBound,omitempty"`
}

// ExtractedRelationship links two extracted entities. It is stored as a fact whose
// predicate is the relationship type.
type ExtractedRelationship struct {
	SourceEntity     string `json:"sourceEntity"`
	TargetEntity     string `json:"targetEntity"`
	RelationshipType string `json:"relationshipType"`
	Evidence         string `json:"evidence"`
	EvidencePosition *Span  `json:"evidencePosition,omitempty"`
}

// ExtractionResult is the validated output of one extraction call.
type ExtractionResult struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Facts         []ExtractedFact         `json:"facts"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// Empty reports whether the result carries nothing to materialize.
func (r *ExtractionResult) Empty() bool {
	return r == nil || (len(r.Entities) == 0 && len(r.Facts) == 0 && len(r.Relationships) == 0)
}

// CacheEntry is a stored extraction response keyed by (InputHash, PromptVersion).
type CacheEntry struct {
	ID            string    `json:"id"`
	InputHash     string    `json:"input_hash"`
	PromptVersion string    `json:"prompt_version"`
	ModelID       string    `json:"model_id"`
	Response      string    `json:"response"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer servable at now.
func (c *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
