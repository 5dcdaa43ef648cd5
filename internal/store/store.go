// Package store defines the transactional document store behind realm-sync and its
// in-memory and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aileks/realm-sync/internal/models"
)

// ErrNotFound is returned by Get* and Delete* when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("write in read-only transaction")

// Store runs functions inside serializable transactions.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error nothing it
	// wrote is visible afterwards.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close releases resources.
	Close() error
}

// Tx is the set of reads and writes available inside a transaction.
// List methods return records in insertion order.
type Tx interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	PutProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	ProjectsByUser(ctx context.Context, userID string) ([]models.Project, error)
	AllProjects(ctx context.Context) ([]models.Project, error)

	GetDocument(ctx context.Context, id string) (*models.Document, error)
	PutDocument(ctx context.Context, d *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	DocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error)

	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	PutEntity(ctx context.Context, e *models.Entity) error
	DeleteEntity(ctx context.Context, id string) error
	EntitiesByProject(ctx context.Context, projectID string) ([]models.Entity, error)

	GetFact(ctx context.Context, id string) (*models.Fact, error)
	PutFact(ctx context.Context, f *models.Fact) error
	DeleteFact(ctx context.Context, id string) error
	FactsByProject(ctx context.Context, projectID string) ([]models.Fact, error)
	FactsByEntity(ctx context.Context, entityID string) ([]models.Fact, error)
	FactsByDocument(ctx context.Context, documentID string) ([]models.Fact, error)

	InsertCacheEntry(ctx context.Context, e *models.CacheEntry) error
	CacheEntries(ctx context.Context, inputHash, promptVersion string) ([]models.CacheEntry, error)
	// DeleteCacheEntries removes every entry of promptVersion, or only those also
	// matching inputHash when it is non-empty. It returns the number removed.
	DeleteCacheEntries(ctx context.Context, promptVersion, inputHash string) (int, error)
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int, error)
	CountExpiredCacheEntries(ctx context.Context, now time.Time) (int, error)
}
