package models

import (
	"strings"
	"time"
)

// EntityType classifies the kind of entity.
type EntityType string

const (
	EntityTypeCharacter EntityType = "character"
	EntityTypeLocation  EntityType = "location"
	EntityTypeItem      EntityType = "item"
	EntityTypeConcept   EntityType = "concept"
	EntityTypeEvent     EntityType = "event"
)

// ValidEntityTypes is the set of all valid entity types.
var ValidEntityTypes = []EntityType{
	EntityTypeCharacter,
	EntityTypeLocation,
	EntityTypeItem,
	EntityTypeConcept,
	EntityTypeEvent,
}

// IsValid returns true if the entity type is recognized.
func (et EntityType) IsValid() bool {
	for i := range ValidEntityTypes {
		if et == ValidEntityTypes[i] {
			return true
		}
	}
	return false
}

// ParseEntityType folds case and surrounding space before validating.
// The second return value is false when the input is not a known type.
func ParseEntityType(s string) (EntityType, bool) {
	et := EntityType(strings.ToLower(strings.TrimSpace(s)))
	return et, et.IsValid()
}

// EntityStatus is the review state of an entity.
type EntityStatus string

const (
	EntityStatusPending   EntityStatus = "pending"
	EntityStatusConfirmed EntityStatus = "confirmed"
)

// IsValid returns true if the status is recognized.
func (s EntityStatus) IsValid() bool {
	return s == EntityStatusPending || s == EntityStatusConfirmed
}

// Entity is a character, location, item, concept or event tracked in a project's canon.
type Entity struct {
	ID                string       `json:"id"`
	ProjectID         string       `json:"project_id"`
	Name              string       `json:"name"`
	Type              EntityType   `json:"type"`
	Description       string       `json:"description,omitempty"`
	Aliases           []string     `json:"aliases"`
	Status            EntityStatus `json:"status"`
	FirstMentionedIn  string       `json:"first_mentioned_in,omitempty"`
	RevealedToViewers bool         `json:"revealed_to_viewers,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Names returns the entity name followed by its aliases.
func (e *Entity) Names() []string {
	out := make([]string, 0, len(e.Aliases)+1)
	out = append(out, e.Name)
	return append(out, e.Aliases...)
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	e.Aliases = append([]string{}, e.Aliases...)
	return e
}
