package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"condense/internal/types"
)

const currentCacheSize = 256

// Placeholders use the $N form, which both the pgx stdlib driver and
// modernc sqlite accept as long as each placeholder appears once, in
// order. Timestamps are stored as RFC3339 text for the same reason.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		version INTEGER NOT NULL,
		is_current BOOLEAN NOT NULL,
		parent_version_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		quality_score DOUBLE PRECISION,
		user_rating INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (source_id, kind, version)
	)`,
	// Backstop for the versioning invariant: at most one current row
	// per scope, enforced even against a racing writer.
	`CREATE UNIQUE INDEX IF NOT EXISTS summaries_current_idx
		ON summaries (source_id, kind) WHERE is_current`,
	`CREATE TABLE IF NOT EXISTS segments (
		source_id TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		section_title TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 0,
		estimated_tokens INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_id, segment_index)
	)`,
	`CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS collection_sources (
		collection_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 0,
		weight DOUBLE PRECISION NOT NULL DEFAULT 1,
		PRIMARY KEY (collection_id, source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		summary_id TEXT NOT NULL,
		name TEXT NOT NULL,
		normalized TEXT NOT NULL,
		importance DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS concepts_summary_idx ON concepts (summary_id)`,
}

// SQLStore runs against Postgres (postgres:// DSN, via pgx) or a local
// SQLite file (any other DSN). Current-summary lookups go through a
// small LRU keyed by sourceID + "/" + kind.
type SQLStore struct {
	db      *sql.DB
	driver  string
	current *lru.Cache[string, types.Summary]
}

func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// Single writer; avoids SQLITE_BUSY under concurrent inserts.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	cache, err := lru.New[string, types.Summary](currentCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, driver: driver, current: cache}, nil
}

func (s *SQLStore) Summaries() SummaryStore      { return s }
func (s *SQLStore) Segments() SegmentStore       { return sqlSegments{s} }
func (s *SQLStore) Collections() CollectionStore { return sqlCollections{s} }
func (s *SQLStore) Concepts() ConceptStore       { return s }
func (s *SQLStore) Close() error                 { return s.db.Close() }

func cacheKey(sourceID string, kind types.SummaryKind) string {
	return sourceID + "/" + string(kind)
}

const summaryColumns = `id, source_id, kind, title, content, word_count, version, is_current,
	parent_version_id, model, duration_ms, input_tokens, output_tokens,
	quality_score, user_rating, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(r rowScanner) (types.Summary, error) {
	var (
		row                  types.Summary
		quality              sql.NullFloat64
		rating               sql.NullInt64
		createdAt, updatedAt string
	)
	err := r.Scan(&row.ID, &row.SourceID, &row.Kind, &row.Title, &row.Content,
		&row.WordCount, &row.Version, &row.IsCurrent, &row.ParentVersionID,
		&row.Model, &row.DurationMS, &row.InputTokens, &row.OutputTokens,
		&quality, &rating, &createdAt, &updatedAt)
	if err != nil {
		return types.Summary{}, err
	}
	if quality.Valid {
		v := quality.Float64
		row.QualityScore = &v
	}
	if rating.Valid {
		v := int(rating.Int64)
		row.UserRating = &v
	}
	if row.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return types.Summary{}, fmt.Errorf("parse created_at: %w", err)
	}
	if row.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return types.Summary{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return row, nil
}

func (s *SQLStore) Insert(ctx context.Context, in types.CreateSummaryInput) (types.Summary, error) {
	out, err := s.InsertBatch(ctx, []types.CreateSummaryInput{in})
	if err != nil {
		return types.Summary{}, err
	}
	return out[0], nil
}

// insertRetries bounds how often a writer that lost the version race
// re-runs its transaction before the error is returned as-is.
const insertRetries = 3

func (s *SQLStore) InsertBatch(ctx context.Context, ins []types.CreateSummaryInput) ([]types.Summary, error) {
	for _, in := range ins {
		if err := validateSummaryInput(in); err != nil {
			return nil, err
		}
	}

	// On Postgres at READ COMMITTED, two writers can read the same
	// MAX(version) before either commits. The advisory lock serializes
	// writers per scope; if a violation still slips through, the whole
	// transaction is retried with a fresh version read.
	var (
		out []types.Summary
		err error
	)
	for attempt := 0; attempt < insertRetries; attempt++ {
		out, err = s.insertBatchTx(ctx, ins)
		if !isUniqueViolation(err) {
			break
		}
	}
	return out, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLStore) insertBatchTx(ctx context.Context, ins []types.CreateSummaryInput) ([]types.Summary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	next := map[scopeKey]int{}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	out := make([]types.Summary, 0, len(ins))
	for _, in := range ins {
		key := scopeKey{sourceID: in.SourceID, kind: in.Kind}
		if _, seen := next[key]; !seen {
			if s.driver == "pgx" {
				// Held until commit; same-scope writers queue here
				// instead of racing the MAX(version) read.
				if _, err := tx.ExecContext(ctx,
					`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
					key.sourceID+"/"+string(key.kind)); err != nil {
					return nil, err
				}
			}
			var base int
			err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(version), 0) FROM summaries WHERE source_id = $1 AND kind = $2`,
				key.sourceID, string(key.kind)).Scan(&base)
			if err != nil {
				return nil, err
			}
			next[key] = base
		}
		next[key]++

		if _, err := tx.ExecContext(ctx,
			`UPDATE summaries SET is_current = FALSE, updated_at = $1
			 WHERE source_id = $2 AND kind = $3 AND is_current`,
			now, key.sourceID, string(key.kind)); err != nil {
			return nil, err
		}

		row := types.Summary{
			ID:              uuid.NewString(),
			SourceID:        in.SourceID,
			Kind:            in.Kind,
			Title:           in.Title,
			Content:         in.Content,
			WordCount:       types.WordCount(in.Content),
			Version:         next[key],
			IsCurrent:       true,
			ParentVersionID: in.ParentVersionID,
			Model:           in.Model,
			DurationMS:      in.Duration.Milliseconds(),
			InputTokens:     in.InputTokens,
			OutputTokens:    in.OutputTokens,
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, now)
		row.UpdatedAt = row.CreatedAt
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO summaries (`+summaryColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $10, $11, $12, NULL, NULL, $13, $14)`,
			row.ID, row.SourceID, string(row.Kind), row.Title, row.Content,
			row.WordCount, row.Version, row.ParentVersionID, row.Model,
			row.DurationMS, row.InputTokens, row.OutputTokens, now, now); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	// Invalidate rather than fill: a slower committer must not clobber
	// a newer current row another writer already cached.
	for _, row := range out {
		s.current.Remove(cacheKey(row.SourceID, row.Kind))
	}
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (types.Summary, error) {
	row, err := scanSummary(s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Summary{}, ErrNotFound
	}
	return row, err
}

func (s *SQLStore) Current(ctx context.Context, sourceID string, kind types.SummaryKind) (types.Summary, error) {
	if row, ok := s.current.Get(cacheKey(sourceID, kind)); ok {
		return row, nil
	}
	row, err := scanSummary(s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE source_id = $1 AND kind = $2 AND is_current`,
		sourceID, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Summary{}, ErrNotFound
	}
	if err != nil {
		return types.Summary{}, err
	}
	s.current.Add(cacheKey(sourceID, kind), row)
	return row, nil
}

func (s *SQLStore) ListCurrent(ctx context.Context, sourceID string) ([]types.Summary, error) {
	return s.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE source_id = $1 AND is_current ORDER BY kind`,
		sourceID)
}

func (s *SQLStore) Versions(ctx context.Context, sourceID string, kind types.SummaryKind) ([]types.Summary, error) {
	return s.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE source_id = $1 AND kind = $2 ORDER BY version`,
		sourceID, string(kind))
}

func (s *SQLStore) querySummaries(ctx context.Context, query string, args ...any) ([]types.Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Summary
	for rows.Next() {
		row, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateContent(ctx context.Context, id, title, content string) (types.Summary, error) {
	if strings.TrimSpace(content) == "" {
		return types.Summary{}, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	row, err := s.Get(ctx, id)
	if err != nil {
		return types.Summary{}, err
	}
	if strings.TrimSpace(title) != "" {
		row.Title = title
	}
	row.Content = content
	row.WordCount = types.WordCount(content)
	row.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE summaries SET title = $1, content = $2, word_count = $3, updated_at = $4 WHERE id = $5`,
		row.Title, row.Content, row.WordCount, row.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return types.Summary{}, err
	}
	s.current.Remove(cacheKey(row.SourceID, row.Kind))
	return row, nil
}

func (s *SQLStore) Rate(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be in 1..5", ErrInvalid)
	}
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE summaries SET user_rating = $1, updated_at = $2 WHERE id = $3`,
		rating, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	s.current.Remove(cacheKey(row.SourceID, row.Kind))
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	row, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE summary_id = $1`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.current.Remove(cacheKey(row.SourceID, row.Kind))
	return nil
}

func (s *SQLStore) ReplaceForSummary(ctx context.Context, summaryID string, concepts []types.Concept) error {
	if strings.TrimSpace(summaryID) == "" {
		return fmt.Errorf("%w: summary id is required", ErrInvalid)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE summary_id = $1`, summaryID); err != nil {
		return err
	}
	for _, c := range concepts {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO concepts (id, summary_id, name, normalized, importance) VALUES ($1, $2, $3, $4, $5)`,
			id, summaryID, c.Name, c.Normalized, c.Importance); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListBySummaries(ctx context.Context, summaryIDs []string) ([]types.Concept, error) {
	var out []types.Concept
	// IN-list expansion differs across drivers; one query per summary
	// keeps the placeholders portable and the batches are small.
	for _, summaryID := range summaryIDs {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, summary_id, name, normalized, importance FROM concepts WHERE summary_id = $1`,
			summaryID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var c types.Concept
			if err := rows.Scan(&c.ID, &c.SummaryID, &c.Name, &c.Normalized, &c.Importance); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

type sqlSegments struct{ s *SQLStore }

func (m sqlSegments) Replace(ctx context.Context, sourceID string, segs []types.DocumentSegment) error {
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalid)
	}
	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE source_id = $1`, sourceID); err != nil {
		return err
	}
	for _, seg := range segs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO segments (source_id, segment_index, start_index, end_index, section_title, level, estimated_tokens)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sourceID, seg.SegmentIndex, seg.StartIndex, seg.EndIndex,
			seg.SectionTitle, seg.Level, seg.EstimatedTokens); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m sqlSegments) List(ctx context.Context, sourceID string) ([]types.DocumentSegment, error) {
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT source_id, segment_index, start_index, end_index, section_title, level, estimated_tokens
		 FROM segments WHERE source_id = $1 ORDER BY segment_index`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.DocumentSegment
	for rows.Next() {
		var seg types.DocumentSegment
		if err := rows.Scan(&seg.SourceID, &seg.SegmentIndex, &seg.StartIndex, &seg.EndIndex,
			&seg.SectionTitle, &seg.Level, &seg.EstimatedTokens); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

type sqlCollections struct{ s *SQLStore }

func (m sqlCollections) Create(ctx context.Context, name, description string) (types.SummaryCollection, error) {
	if strings.TrimSpace(name) == "" {
		return types.SummaryCollection{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	col := types.SummaryCollection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := m.s.db.ExecContext(ctx,
		`INSERT INTO collections (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		col.ID, col.Name, col.Description, col.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return types.SummaryCollection{}, err
	}
	return col, nil
}

func (m sqlCollections) Get(ctx context.Context, id string) (types.SummaryCollection, error) {
	var (
		col       types.SummaryCollection
		createdAt string
	)
	err := m.s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM collections WHERE id = $1`, id).
		Scan(&col.ID, &col.Name, &col.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SummaryCollection{}, ErrNotFound
	}
	if err != nil {
		return types.SummaryCollection{}, err
	}
	col.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	return col, err
}

func (m sqlCollections) List(ctx context.Context) ([]types.SummaryCollection, error) {
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM collections ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.SummaryCollection
	for rows.Next() {
		var (
			col       types.SummaryCollection
			createdAt string
		)
		if err := rows.Scan(&col.ID, &col.Name, &col.Description, &createdAt); err != nil {
			return nil, err
		}
		if col.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

func (m sqlCollections) Delete(ctx context.Context, id string) error {
	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collection_sources WHERE collection_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (m sqlCollections) AddSource(ctx context.Context, collectionID, sourceID string, sequence int, weight float64) error {
	if strings.TrimSpace(sourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalid)
	}
	if _, err := m.Get(ctx, collectionID); err != nil {
		return err
	}
	_, err := m.s.db.ExecContext(ctx,
		`INSERT INTO collection_sources (collection_id, source_id, sequence, weight)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection_id, source_id) DO UPDATE SET sequence = excluded.sequence, weight = excluded.weight`,
		collectionID, sourceID, sequence, weight)
	return err
}

func (m sqlCollections) RemoveSource(ctx context.Context, collectionID, sourceID string) error {
	res, err := m.s.db.ExecContext(ctx,
		`DELETE FROM collection_sources WHERE collection_id = $1 AND source_id = $2`,
		collectionID, sourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m sqlCollections) Sources(ctx context.Context, collectionID string) ([]types.CollectionSource, error) {
	if _, err := m.Get(ctx, collectionID); err != nil {
		return nil, err
	}
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT collection_id, source_id, sequence, weight FROM collection_sources
		 WHERE collection_id = $1 ORDER BY sequence, source_id`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.CollectionSource
	for rows.Next() {
		var cs types.CollectionSource
		if err := rows.Scan(&cs.CollectionID, &cs.SourceID, &cs.Sequence, &cs.Weight); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
