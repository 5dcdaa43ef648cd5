package models

import (
	"strings"
	"time"
)

// ProcessingStatus tracks a document through the extraction pipeline.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
)

// IsValid returns true if the status is recognized.
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case ProcessingPending, ProcessingProcessing, ProcessingCompleted:
		return true
	}
	return false
}

// Document is a piece of source material. It holds either inline text (Content) or a
// reference into blob storage (StorageID), never both.
type Document struct {
	ID               string           `json:"id"`
	ProjectID        string           `json:"project_id"`
	Title            string           `json:"title"`
	Content          string           `json:"content,omitempty"`
	StorageID        string           `json:"storage_id,omitempty"`
	ContentType      string           `json:"content_type,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	WordCount        int              `json:"word_count"`
	OrderIndex       int              `json:"order_index"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d.ProcessedAt != nil {
		t := *d.ProcessedAt
		d.ProcessedAt = &t
	}
	return d
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
