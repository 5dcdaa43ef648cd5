package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aileks/realm-sync/internal/models"
)

// MemoryStore is an in-memory implementation of Store. Update holds an exclusive lock
// for the whole transaction and rolls back through an undo log on error.
type MemoryStore struct {
	mu        sync.RWMutex
	projects  *table[models.Project]
	documents *table[models.Document]
	entities  *table[models.Entity]
	facts     *table[models.Fact]
	cache     *table[models.CacheEntry]
}

// Index positions, matching the key functions passed to newTable below.
const (
	projectsByUser    = 0
	documentsByProj   = 0
	entitiesByProj    = 0
	factsByProj       = 0
	factsByEntity     = 1
	factsByDocument   = 2
	cacheByKey        = 0
	cacheByVersion    = 1
	cacheKeySeparator = "\x00"
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:  newTable(func(p models.Project) string { return p.UserID }),
		documents: newTable(func(d models.Document) string { return d.ProjectID }),
		entities:  newTable(func(e models.Entity) string { return e.ProjectID }),
		facts: newTable(
			func(f models.Fact) string { return f.ProjectID },
			func(f models.Fact) string { return f.EntityID },
			func(f models.Fact) string { return f.DocumentID },
		),
		cache: newTable(
			func(c models.CacheEntry) string { return cacheKey(c.InputHash, c.PromptVersion) },
			func(c models.CacheEntry) string { return c.PromptVersion },
		),
	}
}

func cacheKey(hash, version string) string { return hash + cacheKeySeparator + version }

// Update runs fn under the write lock. Any error (or panic) from fn undoes its writes.
func (m *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{s: m, writable: true}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

// View runs fn under the read lock.
func (m *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{s: m})
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

type memTx struct {
	s        *MemoryStore
	writable bool
	undo     []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memTx) checkWritable() error {
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

// putRow and deleteRow record the undo step for a single table mutation.
func putRow[T any](tx *memTx, t *table[T], id string, v T) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.put(id, v)
	tx.undo = append(tx.undo, func() { t.restore(id, prev, existed) })
	return nil
}

func deleteRow[T any](tx *memTx, t *table[T], kind, id string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.del(id)
	if !existed {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	tx.undo = append(tx.undo, func() { t.restore(id, prev, true) })
	return nil
}

// --- projects ---

func (tx *memTx) GetProject(_ context.Context, id string) (*models.Project, error) {
	p, ok := tx.s.projects.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	p = p.Clone()
	return &p, nil
}

func (tx *memTx) PutProject(_ context.Context, p *models.Project) error {
	return putRow(tx, tx.s.projects, p.ID, p.Clone())
}

func (tx *memTx) DeleteProject(_ context.Context, id string) error {
	return deleteRow(tx, tx.s.projects, "project", id)
}

func (tx *memTx) ProjectsByUser(_ context.Context, userID string) ([]models.Project, error) {
	return cloneAll(tx.s.projects.lookup(projectsByUser, userID), models.Project.Clone), nil
}

func (tx *memTx) AllProjects(_ context.Context) ([]models.Project, error) {
	return cloneAll(tx.s.projects.all(), models.Project.Clone), nil
}

// --- documents ---

func (tx *memTx) GetDocument(_ context.Context, id string) (*models.Document, error) {
	d, ok := tx.s.documents.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	d = d.Clone()
	return &d, nil
}

func (tx *memTx) PutDocument(_ context.Context, d *models.Document) error {
	return putRow(tx, tx.s.documents, d.ID, d.Clone())
}

func (tx *memTx) DeleteDocument(_ context.Context, id string) error {
	return deleteRow(tx, tx.s.documents, "document", id)
}

func (tx *memTx) DocumentsByProject(_ context.Context, projectID string) ([]models.Document, error) {
	return cloneAll(tx.s.documents.lookup(documentsByProj, projectID), models.Document.Clone), nil
}

// --- entities ---

func (tx *memTx) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	e, ok := tx.s.entities.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	e = e.Clone()
	return &e, nil
}

func (tx *memTx) PutEntity(_ context.Context, e *models.Entity) error {
	return putRow(tx, tx.s.entities, e.ID, e.Clone())
}

func (tx *memTx) DeleteEntity(_ context.Context, id string) error {
	return deleteRow(tx, tx.s.entities, "entity", id)
}

func (tx *memTx) EntitiesByProject(_ context.Context, projectID string) ([]models.Entity, error) {
	return cloneAll(tx.s.entities.lookup(entitiesByProj, projectID), models.Entity.Clone), nil
}

// --- facts ---

func (tx *memTx) GetFact(_ context.Context, id string) (*models.Fact, error) {
	f, ok := tx.s.facts.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: fact %s", ErrNotFound, id)
	}
	f = f.Clone()
	return &f, nil
}

func (tx *memTx) PutFact(_ context.Context, f *models.Fact) error {
	return putRow(tx, tx.s.facts, f.ID, f.Clone())
}

func (tx *memTx) DeleteFact(_ context.Context, id string) error {
	return deleteRow(tx, tx.s.facts, "fact", id)
}

func (tx *memTx) FactsByProject(_ context.Context, projectID string) ([]models.Fact, error) {
	return cloneAll(tx.s.facts.lookup(factsByProj, projectID), models.Fact.Clone), nil
}

func (tx *memTx) FactsByEntity(_ context.Context, entityID string) ([]models.Fact, error) {
	return cloneAll(tx.s.facts.lookup(factsByEntity, entityID), models.Fact.Clone), nil
}

func (tx *memTx) FactsByDocument(_ context.Context, documentID string) ([]models.Fact, error) {
	return cloneAll(tx.s.facts.lookup(factsByDocument, documentID), models.Fact.Clone), nil
}

// --- cache ---

func (tx *memTx) InsertCacheEntry(_ context.Context, e *models.CacheEntry) error {
	return putRow(tx, tx.s.cache, e.ID, *e)
}

func (tx *memTx) CacheEntries(_ context.Context, inputHash, promptVersion string) ([]models.CacheEntry, error) {
	return tx.s.cache.lookup(cacheByKey, cacheKey(inputHash, promptVersion)), nil
}

func (tx *memTx) DeleteCacheEntries(_ context.Context, promptVersion, inputHash string) (int, error) {
	var victims []models.CacheEntry
	if inputHash == "" {
		victims = tx.s.cache.lookup(cacheByVersion, promptVersion)
	} else {
		victims = tx.s.cache.lookup(cacheByKey, cacheKey(inputHash, promptVersion))
	}
	for i := range victims {
		if err := deleteRow(tx, tx.s.cache, "cache entry", victims[i].ID); err != nil {
			return i, err
		}
	}
	return len(victims), nil
}

func (tx *memTx) DeleteExpiredCacheEntries(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, e := range tx.s.cache.all() {
		if !e.Expired(now) {
			continue
		}
		if err := deleteRow(tx, tx.s.cache, "cache entry", e.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (tx *memTx) CountExpiredCacheEntries(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, e := range tx.s.cache.all() {
		if e.Expired(now) {
			n++
		}
	}
	return n, nil
}

func cloneAll[T any](in []T, clone func(T) T) []T {
	for i := range in {
		in[i] = clone(in[i])
	}
	return in
}
