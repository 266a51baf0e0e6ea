package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Filters narrows Recent.
type Filters struct {
	ActorID  string
	Action   string
	Status   Status
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Normalize clamps paging values.
func (f Filters) Normalize() Filters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

// Page is one page of records, newest first.
type Page struct {
	Records  []Record `json:"records"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	HasNext  bool     `json:"has_next"`
}

// PGStore writes records into audit_records.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a store backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Append persists rec. Writing the same record id twice is a no-op.
func (s *PGStore) Append(ctx context.Context, rec Record) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: store not initialised")
	}
	if rec.ID == "" || rec.Action == "" {
		return errors.New("audit: record requires id and action")
	}
	var details []byte
	if len(rec.Details) > 0 {
		var err error
		details, err = json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("audit: encode details: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_records
		(id, actor_id, action, status, route, method, http_status, occurred_at, details, error)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.ActorID, rec.Action, string(rec.Status), rec.Route, rec.Method,
		rec.HTTPStatus, rec.At, details, rec.Error)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Purge removes records older than before and returns the number deleted.
func (s *PGStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_records WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Recent lists records matching filters, newest first.
func (s *PGStore) Recent(ctx context.Context, filters Filters) (Page, error) {
	filters = filters.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filters.ActorID != "" {
		add("actor_id = $%d", filters.ActorID)
	}
	if filters.Action != "" {
		add("action = $%d", filters.Action)
	}
	if filters.Status != "" {
		add("status = $%d", string(filters.Status))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To)
	}
	query := `SELECT id, actor_id, action, status, route, method, http_status, occurred_at, details, error FROM audit_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filters.PageSize+1, (filters.Page-1)*filters.PageSize)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("audit: recent: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return Page{}, fmt.Errorf("audit: recent: %w", err)
	}
	page := Page{Page: filters.Page, PageSize: filters.PageSize}
	if len(records) > filters.PageSize {
		records = records[:filters.PageSize]
		page.HasNext = true
	}
	page.Records = records
	return page, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		rec      Record
		actor    pgtype.Text
		status   string
		details  []byte
		errText  pgtype.Text
		occurred pgtype.Timestamptz
	)
	if err := row.Scan(&rec.ID, &actor, &rec.Action, &status, &rec.Route, &rec.Method, &rec.HTTPStatus, &occurred, &details, &errText); err != nil {
		return Record{}, err
	}
	rec.ActorID = actor.String
	rec.Status = Status(status)
	rec.At = occurred.Time.UTC()
	rec.Error = errText.String
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return Record{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return rec, nil
}
