package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aileks/realm-sync/internal/models"
)

// ParseError reports the first field of a model response that failed validation.
type ParseError struct {
	Path   string // e.g. "facts[2].confidence"; empty for document-level failures
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid extraction response: " + e.Reason
	}
	return fmt.Sprintf("invalid extraction response: %s: %s", e.Path, e.Reason)
}

// rawResult mirrors the response schema with pointers where absence matters.
type rawResult struct {
	Entities      []rawEntity       `json:"entities"`
	Facts         []rawFact         `json:"facts"`
	Relationships []rawRelationship `json:"relationships"`
}

type rawEntity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	Status      string   `json:"status"`
}

type rawFact struct {
	EntityName       string                `json:"entityName"`
	Subject          string                `json:"subject"`
	Predicate        string                `json:"predicate"`
	Object           string                `json:"object"`
	Confidence       *float64              `json:"confidence"`
	Evidence         string                `json:"evidence"`
	EvidencePosition *models.Span          `json:"evidencePosition"`
	TemporalBound    *models.TemporalBound `json:"temporalBound"`
}

type rawRelationship struct {
	SourceEntity     string       `json:"sourceEntity"`
	TargetEntity     string       `json:"targetEntity"`
	RelationshipType string       `json:"relationshipType"`
	Evidence         string       `json:"evidence"`
	EvidencePosition *models.Span `json:"evidencePosition"`
}

// Parse decodes and validates a model response. Unknown entity types become concept.
func Parse(raw string) (*models.ExtractionResult, error) {
	return parse(raw, nil)
}

// parse is Parse with a hook called for every coerced entity type.
func parse(raw string, onCoerce func(name, typ string)) (*models.ExtractionResult, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	var rr rawResult
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&rr); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	out := &models.ExtractionResult{
		Entities:      make([]models.ExtractedEntity, 0, len(rr.Entities)),
		Facts:         make([]models.ExtractedFact, 0, len(rr.Facts)),
		Relationships: make([]models.ExtractedRelationship, 0, len(rr.Relationships)),
	}

	for i, e := range rr.Entities {
		path := fmt.Sprintf("entities[%d]", i)
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, &ParseError{Path: path + ".name", Reason: "required"}
		}
		if strings.TrimSpace(e.Type) == "" {
			return nil, &ParseError{Path: path + ".type", Reason: "required"}
		}
		et, ok := models.ParseEntityType(e.Type)
		if !ok {
			if onCoerce != nil {
				onCoerce(name, e.Type)
			}
			et = models.EntityTypeConcept
		}
		aliases := make([]string, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				aliases = append(aliases, a)
			}
		}
		out.Entities = append(out.Entities, models.ExtractedEntity{
			Name:        name,
			Type:        et,
			Description: strings.TrimSpace(e.Description),
			Aliases:     aliases,
			Status:      e.Status,
		})
	}

	for i, f := range rr.Facts {
		path := fmt.Sprintf("facts[%d]", i)
		for _, req := range []struct{ field, v string }{
			{"entityName", f.EntityName},
			{"subject", f.Subject},
			{"predicate", f.Predicate},
			{"object", f.Object},
		} {
			if strings.TrimSpace(req.v) == "" {
				return nil, &ParseError{Path: path + "." + req.field, Reason: "required"}
			}
		}
		if f.Confidence == nil {
			return nil, &ParseError{Path: path + ".confidence", Reason: "required"}
		}
		if c := *f.Confidence; c < 0 || c > 1 {
			return nil, &ParseError{Path: path + ".confidence", Reason: fmt.Sprintf("%v is outside [0, 1]", c)}
		}
		if err := checkSpan(path, f.EvidencePosition); err != nil {
			return nil, err
		}
		if tb := f.TemporalBound; tb != nil && !tb.Type.IsValid() {
			return nil, &ParseError{Path: path + ".temporalBound.type", Reason: fmt.Sprintf("unknown type %q", tb.Type)}
		}
		out.Facts = append(out.Facts, models.ExtractedFact{
			EntityName:       strings.TrimSpace(f.EntityName),
			Subject:          strings.TrimSpace(f.Subject),
			Predicate:        strings.TrimSpace(f.Predicate),
			Object:           strings.TrimSpace(f.Object),
			Confidence:       *f.Confidence,
			Evidence:         f.Evidence,
			EvidencePosition: f.EvidencePosition,
			TemporalBound:    f.TemporalBound,
		})
	}

	for i, r := range rr.Relationships {
		path := fmt.Sprintf("relationships[%d]", i)
		for _, req := range []struct{ field, v string }{
			{"sourceEntity", r.SourceEntity},
			{"targetEntity", r.TargetEntity},
			{"relationshipType", r.RelationshipType},
		} {
			if strings.TrimSpace(req.v) == "" {
				return nil, &ParseError{Path: path + "." + req.field, Reason: "required"}
			}
		}
		if err := checkSpan(path, r.EvidencePosition); err != nil {
			return nil, err
		}
		out.Relationships = append(out.Relationships, models.ExtractedRelationship{
			SourceEntity:     strings.TrimSpace(r.SourceEntity),
			TargetEntity:     strings.TrimSpace(r.TargetEntity),
			RelationshipType: strings.TrimSpace(r.RelationshipType),
			Evidence:         r.Evidence,
			EvidencePosition: r.EvidencePosition,
		})
	}
	return out, nil
}

func checkSpan(path string, s *models.Span) error {
	if s == nil {
		return nil
	}
	if s.Start < 0 || s.End < s.Start {
		return &ParseError{Path: path + ".evidencePosition", Reason: fmt.Sprintf("invalid span [%d, %d)", s.Start, s.End)}
	}
	return nil
}

// stripFences removes a surrounding markdown code fence and any prose around the
// outermost JSON object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
		if start != -1 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// Rebase returns a copy of r with every evidence position shifted by offset, turning
// chunk-local offsets into document offsets.
func Rebase(r *models.ExtractionResult, offset int) *models.ExtractionResult {
	if r == nil {
		return nil
	}
	out := &models.ExtractionResult{
		Entities:      make([]models.ExtractedEntity, len(r.Entities)),
		Facts:         make([]models.ExtractedFact, len(r.Facts)),
		Relationships: make([]models.ExtractedRelationship, len(r.Relationships)),
	}
	for i, e := range r.Entities {
		e.Aliases = append([]string{}, e.Aliases...)
		out.Entities[i] = e
	}
	for i, f := range r.Facts {
		f.EvidencePosition = shift(f.EvidencePosition, offset)
		if f.TemporalBound != nil {
			tb := *f.TemporalBound
			f.TemporalBound = &tb
		}
		out.Facts[i] = f
	}
	for i, rel := range r.Relationships {
		rel.EvidencePosition = shift(rel.EvidencePosition, offset)
		out.Relationships[i] = rel
	}
	return out
}

func shift(s *models.Span, offset int) *models.Span {
	if s == nil {
		return nil
	}
	return &models.Span{Start: s.Start + offset, End: s.End + offset}
}
