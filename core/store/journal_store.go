package store

import (
	"context"
	"database/sql"
	"time"

	"staffdesk/core/polling"
	"staffdesk/core/utils"
)

// JournalEntry is the last known sync outcome of one collection in one
// mounted view. It is diagnostic and never fed back into a view.
type JournalEntry struct {
	ViewID        string     `json:"view_id"`
	CollectionKey string     `json:"collection_key"`
	Revision      int64      `json:"revision"`
	ItemCount     int        `json:"item_count"`
	Changed       bool       `json:"changed"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type JournalFilter struct {
	ViewID string
	Limit  int
}

type JournalStore interface {
	Record(ctx context.Context, ev polling.Event)
	Upsert(ctx context.Context, e *JournalEntry) error
	MarkFailed(ctx context.Context, viewID, key, msg string, at time.Time) error
	List(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
}

type journalStore struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewJournalStore(db *sql.DB, logger *utils.Logger) JournalStore {
	return &journalStore{db: db, logger: logger.With("component", "journal")}
}

// Record implements polling.Observer. Write failures are logged only.
func (s *journalStore) Record(ctx context.Context, ev polling.Event) {
	var err error
	if ev.Err != nil {
		err = s.MarkFailed(ctx, ev.ViewID, ev.Key, ev.Err.Error(), ev.At)
	} else {
		at := ev.At
		err = s.Upsert(ctx, &JournalEntry{
			ViewID:        ev.ViewID,
			CollectionKey: ev.Key,
			Revision:      int64(ev.Revision),
			ItemCount:     ev.Count,
			Changed:       ev.Changed,
			FetchedAt:     &at,
			UpdatedAt:     ev.At,
		})
	}
	if err != nil {
		s.logger.Errorf("journal %s/%s: %v", ev.ViewID, ev.Key, err)
	}
}

func (s *journalStore) Upsert(ctx context.Context, e *JournalEntry) error {
	var fetched any
	if e.FetchedAt != nil {
		fetched = e.FetchedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_journal(view_id, collection_key, revision, item_count, changed, fetched_at, last_error, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (view_id, collection_key)
		DO UPDATE SET
			revision=excluded.revision,
			item_count=excluded.item_count,
			changed=excluded.changed,
			fetched_at=excluded.fetched_at,
			last_error=excluded.last_error,
			updated_at=excluded.updated_at`,
		e.ViewID, e.CollectionKey, e.Revision, e.ItemCount, e.Changed, fetched, e.LastError, e.UpdatedAt.UTC())
	return err
}

// MarkFailed records a failed fetch without touching the last successful
// revision and count.
func (s *journalStore) MarkFailed(ctx context.Context, viewID, key, msg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_journal(view_id, collection_key, last_error, updated_at)
		VALUES($1,$2,$3,$4)
		ON CONFLICT (view_id, collection_key)
		DO UPDATE SET
			last_error=excluded.last_error,
			updated_at=excluded.updated_at`,
		viewID, key, msg, at.UTC())
	return err
}

func (s *journalStore) List(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT view_id, collection_key, revision, item_count, changed, fetched_at, last_error, updated_at
		FROM sync_journal`
	args := []any{}
	if filter.ViewID != "" {
		query += ` WHERE view_id=$1`
		args = append(args, filter.ViewID)
	}
	query += ` ORDER BY updated_at DESC, collection_key ASC`
	if filter.ViewID != "" {
		query += ` LIMIT $2`
	} else {
		query += ` LIMIT $1`
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []JournalEntry{}
	for rows.Next() {
		var (
			e       JournalEntry
			fetched sql.NullTime
		)
		if err := rows.Scan(&e.ViewID, &e.CollectionKey, &e.Revision, &e.ItemCount, &e.Changed, &fetched, &e.LastError, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if fetched.Valid {
			t := fetched.Time.UTC()
			e.FetchedAt = &t
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}
