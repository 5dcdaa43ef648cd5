package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store/migrations"
)

// SQLiteStore implements Store on a single SQLite connection. Each Update is one
// database transaction, so a failed callback leaves no partial writes.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path (a file or ":memory:"), enables foreign keys and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for migration checks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Update runs fn inside BEGIN/COMMIT, rolling back if fn fails.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn inside a read-only transaction.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *SQLiteStore) run(ctx context.Context, readOnly bool, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&sqliteTx{tx: sqlTx, readOnly: readOnly}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *sqliteTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, ErrReadOnly
	}
	return t.tx.ExecContext(ctx, query, args...)
}

// deleteByID removes one row and maps a zero row count to ErrNotFound.
func (t *sqliteTx) deleteByID(ctx context.Context, table, kind, id string) error {
	res, err := t.exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}

func queryAll[T any](ctx context.Context, tx *sql.Tx, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryOne[T any](ctx context.Context, tx *sql.Tx, scan func(scanner) (T, error), kind, id, query string) (*T, error) {
	v, err := scan(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		return nil, fmt.Errorf("reading %s: %w", kind, err)
	}
	return &v, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- projects ---

const projectColumns = `id, user_id, name, description, type, reveal_to_players, has_stats,
	document_count, entity_count, fact_count, alert_count, note_count, created_at, updated_at`

func scanProject(s scanner) (models.Project, error) {
	var (
		p                models.Project
		reveal, hasStats int
		st               models.ProjectStats
		created, updated int64
	)
	err := s.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Type, &reveal, &hasStats,
		&st.DocumentCount, &st.EntityCount, &st.FactCount, &st.AlertCount, &st.NoteCount, &created, &updated)
	if err != nil {
		return p, err
	}
	p.RevealToPlayers = reveal != 0
	if hasStats != 0 {
		p.Stats = &st
	}
	p.CreatedAt, p.UpdatedAt = fromMillis(created), fromMillis(updated)
	return p, nil
}

func (t *sqliteTx) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return queryOne(ctx, t.tx, scanProject, "project", id, "SELECT "+projectColumns+" FROM projects WHERE id = ?")
}

func (t *sqliteTx) PutProject(ctx context.Context, p *models.Project) error {
	st := p.StatsOrZero()
	_, err := t.exec(ctx, `INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id, name = excluded.name, description = excluded.description,
			type = excluded.type, reveal_to_players = excluded.reveal_to_players, has_stats = excluded.has_stats,
			document_count = excluded.document_count, entity_count = excluded.entity_count,
			fact_count = excluded.fact_count, alert_count = excluded.alert_count, note_count = excluded.note_count,
			created_at = excluded.created_at, updated_at = excluded.updated_at`,
		p.ID, p.UserID, p.Name, p.Description, string(p.Type), boolInt(p.RevealToPlayers), boolInt(p.Stats != nil),
		st.DocumentCount, st.EntityCount, st.FactCount, st.AlertCount, st.NoteCount,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("writing project: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteProject(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "projects", "project", id)
}

func (t *sqliteTx) ProjectsByUser(ctx context.Context, userID string) ([]models.Project, error) {
	return queryAll(ctx, t.tx, scanProject, "SELECT "+projectColumns+" FROM projects WHERE user_id = ? ORDER BY seq", userID)
}

func (t *sqliteTx) AllProjects(ctx context.Context) ([]models.Project, error) {
	return queryAll(ctx, t.tx, scanProject, "SELECT "+projectColumns+" FROM projects ORDER BY seq")
}

// --- documents ---

const documentColumns = `id, project_id, title, content, storage_id, content_type, processing_status,
	processed_at, word_count, order_index, created_at, updated_at`

func scanDocument(s scanner) (models.Document, error) {
	var (
		d                models.Document
		processed        sql.NullInt64
		created, updated int64
	)
	err := s.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Content, &d.StorageID, &d.ContentType, &d.ProcessingStatus,
		&processed, &d.WordCount, &d.OrderIndex, &created, &updated)
	if err != nil {
		return d, err
	}
	if processed.Valid {
		ts := fromMillis(processed.Int64)
		d.ProcessedAt = &ts
	}
	d.CreatedAt, d.UpdatedAt = fromMillis(created), fromMillis(updated)
	return d, nil
}

func (t *sqliteTx) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return queryOne(ctx, t.tx, scanDocument, "document", id, "SELECT "+documentColumns+" FROM documents WHERE id = ?")
}

func (t *sqliteTx) PutDocument(ctx context.Context, d *models.Document) error {
	var processed sql.NullInt64
	if d.ProcessedAt != nil {
		processed = sql.NullInt64{Int64: toMillis(*d.ProcessedAt), Valid: true}
	}
	_, err := t.exec(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id, title = excluded.title, content = excluded.content,
			storage_id = excluded.storage_id, content_type = excluded.content_type,
			processing_status = excluded.processing_status, processed_at = excluded.processed_at,
			word_count = excluded.word_count, order_index = excluded.order_index,
			created_at = excluded.created_at, updated_at = excluded.updated_at`,
		d.ID, d.ProjectID, d.Title, d.Content, d.StorageID, d.ContentType, string(d.ProcessingStatus),
		processed, d.WordCount, d.OrderIndex, toMillis(d.CreatedAt), toMillis(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "documents", "document", id)
}

func (t *sqliteTx) DocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	return queryAll(ctx, t.tx, scanDocument, "SELECT "+documentColumns+" FROM documents WHERE project_id = ? ORDER BY seq", projectID)
}

// --- entities ---

const entityColumns = `id, project_id, name, type, description, aliases, status, first_mentioned_in,
	revealed_to_viewers, created_at, updated_at`

func scanEntity(s scanner) (models.Entity, error) {
	var (
		e                models.Entity
		aliases          string
		revealed         int
		created, updated int64
	)
	err := s.Scan(&e.ID, &e.ProjectID, &e.Name, &e.Type, &e.Description, &aliases, &e.Status,
		&e.FirstMentionedIn, &revealed, &created, &updated)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
		return e, fmt.Errorf("decoding aliases: %w", err)
	}
	if e.Aliases == nil {
		e.Aliases = []string{}
	}
	e.RevealedToViewers = revealed != 0
	e.CreatedAt, e.UpdatedAt = fromMillis(created), fromMillis(updated)
	return e, nil
}

func (t *sqliteTx) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return queryOne(ctx, t.tx, scanEntity, "entity", id, "SELECT "+entityColumns+" FROM entities WHERE id = ?")
}

func (t *sqliteTx) PutEntity(ctx context.Context, e *models.Entity) error {
	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	raw, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("encoding aliases: %w", err)
	}
	_, err = t.exec(ctx, `INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id, name = excluded.name, type = excluded.type,
			description = excluded.description, aliases = excluded.aliases, status = excluded.status,
			first_mentioned_in = excluded.first_mentioned_in, revealed_to_viewers = excluded.revealed_to_viewers,
			created_at = excluded.created_at, updated_at = excluded.updated_at`,
		e.ID, e.ProjectID, e.Name, string(e.Type), e.Description, string(raw), string(e.Status),
		e.FirstMentionedIn, boolInt(e.RevealedToViewers), toMillis(e.CreatedAt), toMillis(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("writing entity: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteEntity(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "entities", "entity", id)
}

func (t *sqliteTx) EntitiesByProject(ctx context.Context, projectID string) ([]models.Entity, error) {
	return queryAll(ctx, t.tx, scanEntity, "SELECT "+entityColumns+" FROM entities WHERE project_id = ? ORDER BY seq", projectID)
}

// --- facts ---

const factColumns = `id, project_id, entity_id, document_id, subject, predicate, object, confidence, evidence,
	evidence_start, evidence_end, temporal_type, temporal_value, status, created_at, updated_at`

func scanFact(s scanner) (models.Fact, error) {
	var (
		f                models.Fact
		evStart, evEnd   sql.NullInt64
		tbType, tbValue  sql.NullString
		created, updated int64
	)
	err := s.Scan(&f.ID, &f.ProjectID, &f.EntityID, &f.DocumentID, &f.Subject, &f.Predicate, &f.Object,
		&f.Confidence, &f.Evidence, &evStart, &evEnd, &tbType, &tbValue, &f.Status, &created, &updated)
	if err != nil {
		return f, err
	}
	if evStart.Valid && evEnd.Valid {
		f.EvidencePosition = &models.Span{Start: int(evStart.Int64), End: int(evEnd.Int64)}
	}
	if tbType.Valid {
		f.TemporalBound = &models.TemporalBound{Type: models.TemporalBoundType(tbType.String), Value: tbValue.String}
	}
	f.CreatedAt, f.UpdatedAt = fromMillis(created), fromMillis(updated)
	return f, nil
}

func (t *sqliteTx) GetFact(ctx context.Context, id string) (*models.Fact, error) {
	return queryOne(ctx, t.tx, scanFact, "fact", id, "SELECT "+factColumns+" FROM facts WHERE id = ?")
}

func (t *sqliteTx) PutFact(ctx context.Context, f *models.Fact) error {
	var (
		evStart, evEnd  sql.NullInt64
		tbType, tbValue sql.NullString
	)
	if f.EvidencePosition != nil {
		evStart = sql.NullInt64{Int64: int64(f.EvidencePosition.Start), Valid: true}
		evEnd = sql.NullInt64{Int64: int64(f.EvidencePosition.End), Valid: true}
	}
	if f.TemporalBound != nil {
		tbType = sql.NullString{String: string(f.TemporalBound.Type), Valid: true}
		tbValue = sql.NullString{String: f.TemporalBound.Value, Valid: true}
	}
	_, err := t.exec(ctx, `INSERT INTO facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id, entity_id = excluded.entity_id, document_id = excluded.document_id,
			subject = excluded.subject, predicate = excluded.predicate, object = excluded.object,
			confidence = excluded.confidence, evidence = excluded.evidence,
			evidence_start = excluded.evidence_start, evidence_end = excluded.evidence_end,
			temporal_type = excluded.temporal_type, temporal_value = excluded.temporal_value,
			status = excluded.status, created_at = excluded.created_at, updated_at = excluded.updated_at`,
		f.ID, f.ProjectID, f.EntityID, f.DocumentID, f.Subject, f.Predicate, f.Object, f.Confidence, f.Evidence,
		evStart, evEnd, tbType, tbValue, string(f.Status), toMillis(f.CreatedAt), toMillis(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("writing fact: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteFact(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "facts", "fact", id)
}

func (t *sqliteTx) FactsByProject(ctx context.Context, projectID string) ([]models.Fact, error) {
	return queryAll(ctx, t.tx, scanFact, "SELECT "+factColumns+" FROM facts WHERE project_id = ? ORDER BY seq", projectID)
}

func (t *sqliteTx) FactsByEntity(ctx context.Context, entityID string) ([]models.Fact, error) {
	return queryAll(ctx, t.tx, scanFact, "SELECT "+factColumns+" FROM facts WHERE entity_id = ? ORDER BY seq", entityID)
}

func (t *sqliteTx) FactsByDocument(ctx context.Context, documentID string) ([]models.Fact, error) {
	return queryAll(ctx, t.tx, scanFact, "SELECT "+factColumns+" FROM facts WHERE document_id = ? ORDER BY seq", documentID)
}

// --- cache ---

const cacheColumns = `id, input_hash, prompt_version, model_id, response, created_at, expires_at`

func scanCacheEntry(s scanner) (models.CacheEntry, error) {
	var (
		c                models.CacheEntry
		created, expires int64
	)
	if err := s.Scan(&c.ID, &c.InputHash, &c.PromptVersion, &c.ModelID, &c.Response, &created, &expires); err != nil {
		return c, err
	}
	c.CreatedAt, c.ExpiresAt = fromMillis(created), fromMillis(expires)
	return c, nil
}

func (t *sqliteTx) InsertCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	_, err := t.exec(ctx, "INSERT INTO llm_cache ("+cacheColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.InputHash, e.PromptVersion, e.ModelID, e.Response, toMillis(e.CreatedAt), toMillis(e.ExpiresAt))
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (t *sqliteTx) CacheEntries(ctx context.Context, inputHash, promptVersion string) ([]models.CacheEntry, error) {
	return queryAll(ctx, t.tx, scanCacheEntry,
		"SELECT "+cacheColumns+" FROM llm_cache WHERE input_hash = ? AND prompt_version = ? ORDER BY seq",
		inputHash, promptVersion)
}

func (t *sqliteTx) DeleteCacheEntries(ctx context.Context, promptVersion, inputHash string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if inputHash == "" {
		res, err = t.exec(ctx, "DELETE FROM llm_cache WHERE prompt_version = ?", promptVersion)
	} else {
		res, err = t.exec(ctx, "DELETE FROM llm_cache WHERE prompt_version = ? AND input_hash = ?", promptVersion, inputHash)
	}
	return affected(res, err, "deleting cache entries")
}

func (t *sqliteTx) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int, error) {
	res, err := t.exec(ctx, "DELETE FROM llm_cache WHERE expires_at <= ?", toMillis(now))
	return affected(res, err, "purging cache entries")
}

func (t *sqliteTx) CountExpiredCacheEntries(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM llm_cache WHERE expires_at <= ?", toMillis(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting expired cache entries: %w", err)
	}
	return n, nil
}

func affected(res sql.Result, err error, op string) (int, error) {
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}
