package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown or expired drafts.
var ErrNotFound = errors.New("drafts: not found")

// DefaultTTL is how long a draft stays available to the posting flow.
const DefaultTTL = 30 * time.Minute

// Draft is an exported asset waiting to be turned into a post.
type Draft struct {
	ID             string
	AssetReference string
	Source         string
	Dimension      int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

type Options struct {
	TTL         time.Duration
	BusyTimeout time.Duration
}

// Store keeps drafts in SQLite for a short time.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (or creates) the draft database at path. ":memory:" keeps
// drafts for the life of the process.
func Open(path string, options Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	busyTimeoutMs := int(options.BusyTimeout / time.Millisecond)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		_ = db.Close()
		return nil, err
	}

	ttl := options.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{db: db, ttl: ttl, now: time.Now}
	if err := s.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := s.PurgeExpired(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) EnsureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			asset_reference TEXT NOT NULL,
			source TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_drafts_expires_at ON drafts(expires_at);
	`)
	return err
}

// Save stores d and returns it with timestamps filled in. Saving an existing
// id replaces it.
func (s *Store) Save(ctx context.Context, d Draft) (Draft, error) {
	if s == nil || s.db == nil {
		return d, fmt.Errorf("drafts: missing database connection")
	}
	if d.ID == "" {
		return d, fmt.Errorf("drafts: missing id")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	d.ExpiresAt = d.CreatedAt.Add(s.ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, asset_reference, source, dimension, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			asset_reference=excluded.asset_reference,
			source=excluded.source,
			dimension=excluded.dimension,
			created_at=excluded.created_at,
			expires_at=excluded.expires_at
	`, d.ID, d.AssetReference, d.Source, d.Dimension, d.CreatedAt.UnixMilli(), d.ExpiresAt.UnixMilli())
	if err != nil {
		return d, fmt.Errorf("drafts: save %s: %w", d.ID, err)
	}
	if _, err := s.PurgeExpired(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// Get returns an unexpired draft.
func (s *Store) Get(ctx context.Context, id string) (Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, asset_reference, source, dimension, created_at, expires_at
		FROM drafts
		WHERE id = ? AND expires_at > ?
	`, id, s.now().UnixMilli())
	return scanDraft(row)
}

// Take returns an unexpired draft and deletes it, so each draft is posted
// at most once.
func (s *Store) Take(ctx context.Context, id string) (d Draft, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Draft{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	d, err = scanDraft(tx.QueryRowContext(ctx, `
		SELECT id, asset_reference, source, dimension, created_at, expires_at
		FROM drafts
		WHERE id = ? AND expires_at > ?
	`, id, s.now().UnixMilli()))
	if err != nil {
		return Draft{}, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return Draft{}, err
	}
	if err = tx.Commit(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// PurgeExpired deletes expired drafts and reports how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("drafts: purge: %w", err)
	}
	return res.RowsAffected()
}

func scanDraft(row *sql.Row) (Draft, error) {
	var (
		d                    Draft
		createdAt, expiresAt int64
	)
	err := row.Scan(&d.ID, &d.AssetReference, &d.Source, &d.Dimension, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, err
	}
	d.CreatedAt = time.UnixMilli(createdAt)
	d.ExpiresAt = time.UnixMilli(expiresAt)
	return d, nil
}
