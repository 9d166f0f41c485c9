package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/server/internal/domain/events"
)

var _ events.Repository = (*EventsRepository)(nil)

type EventsRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewEventsRepository(pool *pgxpool.Pool) *EventsRepository {
	return &EventsRepository{pool: pool}
}

func (r *EventsRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *EventsRepository) WithTx(ctx context.Context, fn func(context.Context, events.Repository) error) error {
	return inTx(ctx, r.pool, r.tx, func(tx pgx.Tx) error {
		return fn(ctx, &EventsRepository{pool: r.pool, tx: tx})
	})
}

// eventColumns is the shared select list: event columns plus the joined
// category and creator name. Queries using it must alias events as e,
// join event_categories as c and users as u.
const eventColumns = `
e.id, e.title, e.start_at, e.end_at, e.venue, e.city, e.description,
e.category_id, e.attributes, e.created_by, u.name, e.private, e.unconfirmed,
e.copied_from, e.recurring, e.recur_frequency, e.recur_interval, e.recur_days,
e.recur_start_at, e.recur_end_at, e.recur_count, e.created_at, e.updated_at,
c.name, c.icon, c.created_by, c.created_at`

const eventFrom = `
  FROM events e
  JOIN event_categories c ON c.id = e.category_id
  JOIN users u ON u.id = e.created_by`

type eventRow struct {
	ID            uuid.UUID
	Title         string
	StartAt       pgtype.Timestamptz
	EndAt         pgtype.Timestamptz
	Venue         *string
	City          *string
	Description   *string
	CategoryID    uuid.UUID
	Attributes    map[string]any
	CreatedBy     uuid.UUID
	CreatorName   string
	Private       bool
	Unconfirmed   bool
	CopiedFrom    *uuid.UUID
	Recurring     bool
	RecurFreq     *string
	RecurInterval *int
	RecurDays     []int32
	RecurStartAt  pgtype.Timestamptz
	RecurEndAt    pgtype.Timestamptz
	RecurCount    *int
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz

	CategoryName      string
	CategoryIcon      *string
	CategoryCreatedBy *uuid.UUID
	CategoryCreatedAt pgtype.Timestamptz
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*events.Event, error) {
	var r eventRow
	if err := row.Scan(
		&r.ID,
		&r.Title,
		&r.StartAt,
		&r.EndAt,
		&r.Venue,
		&r.City,
		&r.Description,
		&r.CategoryID,
		&r.Attributes,
		&r.CreatedBy,
		&r.CreatorName,
		&r.Private,
		&r.Unconfirmed,
		&r.CopiedFrom,
		&r.Recurring,
		&r.RecurFreq,
		&r.RecurInterval,
		&r.RecurDays,
		&r.RecurStartAt,
		&r.RecurEndAt,
		&r.RecurCount,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.CategoryName,
		&r.CategoryIcon,
		&r.CategoryCreatedBy,
		&r.CategoryCreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	event := &events.Event{
		ID:          r.ID,
		Title:       r.Title,
		Location:    events.Location{Venue: derefString(r.Venue), City: derefString(r.City)},
		Description: derefString(r.Description),
		CategoryID:  r.CategoryID,
		Attributes:  r.Attributes,
		CreatedBy:   r.CreatedBy,
		CreatorName: r.CreatorName,
		Private:     r.Private,
		Unconfirmed: r.Unconfirmed,
		CopiedFrom:  r.CopiedFrom,
	}
	if r.StartAt.Valid {
		event.Date.Start = r.StartAt.Time
	}
	if r.EndAt.Valid {
		event.Date.End = r.EndAt.Time
	}
	if r.CreatedAt.Valid {
		event.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		event.UpdatedAt = r.UpdatedAt.Time
	}

	event.Category = &events.Category{
		ID:        r.CategoryID,
		Name:      r.CategoryName,
		Icon:      derefString(r.CategoryIcon),
		CreatedBy: r.CategoryCreatedBy,
	}
	if r.CategoryCreatedAt.Valid {
		event.Category.CreatedAt = r.CategoryCreatedAt.Time
	}

	if r.Recurring {
		pattern := &events.RecurrencePattern{
			Frequency: derefString(r.RecurFreq),
			Interval:  1,
		}
		if r.RecurInterval != nil {
			pattern.Interval = *r.RecurInterval
		}
		for _, day := range r.RecurDays {
			pattern.DaysOfWeek = append(pattern.DaysOfWeek, int(day))
		}
		if r.RecurStartAt.Valid {
			t := r.RecurStartAt.Time
			pattern.StartDate = &t
		}
		if r.RecurEndAt.Valid {
			t := r.RecurEndAt.Time
			pattern.EndDate = &t
		}
		pattern.Count = r.RecurCount
		event.Recurrence = events.Recurrence{IsRecurring: true, Pattern: pattern}
	}
	return event, nil
}

// recurrenceArgs flattens a Recurrence into the recur_* column values.
func recurrenceArgs(rec events.Recurrence) (recurring bool, freq *string, interval *int, days []int32, startAt, endAt *time.Time, count *int) {
	if !rec.IsRecurring || rec.Pattern == nil {
		return false, nil, nil, nil, nil, nil, nil
	}
	p := rec.Pattern
	freq = &p.Frequency
	interval = &p.Interval
	for _, d := range p.DaysOfWeek {
		days = append(days, int32(d))
	}
	return true, freq, interval, days, p.StartDate, p.EndDate, p.Count
}

func (r *EventsRepository) Create(ctx context.Context, event *events.Event) (*events.Event, error) {
	recurring, freq, interval, days, recurStart, recurEnd, count := recurrenceArgs(event.Recurrence)

	var id uuid.UUID
	err := r.queryer().QueryRow(ctx, `
INSERT INTO events (
  title, start_at, end_at, venue, city, description, category_id, attributes,
  created_by, private, unconfirmed, copied_from,
  recurring, recur_frequency, recur_interval, recur_days, recur_start_at,
  recur_end_at, recur_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING id`,
		event.Title,
		event.Date.Start,
		event.Date.End,
		nullIfEmpty(event.Location.Venue),
		nullIfEmpty(event.Location.City),
		nullIfEmpty(event.Description),
		event.CategoryID,
		event.Attributes,
		event.CreatedBy,
		event.Private,
		event.Unconfirmed,
		event.CopiedFrom,
		recurring,
		freq,
		interval,
		days,
		recurStart,
		recurEnd,
		count,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "events_category_id_fkey" {
			return nil, events.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *EventsRepository) GetByID(ctx context.Context, id uuid.UUID) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+eventFrom+` WHERE e.id = $1`, id)
	return scanEvent(row)
}

func (r *EventsRepository) Update(ctx context.Context, event *events.Event) (*events.Event, error) {
	recurring, freq, interval, days, recurStart, recurEnd, count := recurrenceArgs(event.Recurrence)

	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET title = $2,
       start_at = $3,
       end_at = $4,
       venue = $5,
       city = $6,
       description = $7,
       category_id = $8,
       attributes = $9,
       private = $10,
       unconfirmed = $11,
       copied_from = $12,
       recurring = $13,
       recur_frequency = $14,
       recur_interval = $15,
       recur_days = $16,
       recur_start_at = $17,
       recur_end_at = $18,
       recur_count = $19,
       updated_at = now()
 WHERE id = $1`,
		event.ID,
		event.Title,
		event.Date.Start,
		event.Date.End,
		nullIfEmpty(event.Location.Venue),
		nullIfEmpty(event.Location.City),
		nullIfEmpty(event.Description),
		event.CategoryID,
		event.Attributes,
		event.Private,
		event.Unconfirmed,
		event.CopiedFrom,
		recurring,
		freq,
		interval,
		days,
		recurStart,
		recurEnd,
		count,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "events_category_id_fkey" {
			return nil, events.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}
	return r.GetByID(ctx, event.ID)
}

func (r *EventsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventsRepository) UnlinkCopies(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE events SET copied_from = NULL, updated_at = now() WHERE copied_from = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("unlink copies: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EventsRepository) ListCopies(ctx context.Context, sourceID uuid.UUID) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT `+eventColumns+eventFrom+` WHERE e.copied_from = $1 ORDER BY e.created_at ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list copies: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventsRepository) HasCopy(ctx context.Context, ownerID, sourceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM events WHERE created_by = $1 AND copied_from = $2
)`, ownerID, sourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check copy: %w", err)
	}
	return exists, nil
}

func (r *EventsRepository) ListUpcomingByOwners(ctx context.Context, ownerIDs []uuid.UUID, dayStart time.Time) ([]events.Event, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+eventColumns+eventFrom+`
 WHERE e.created_by = ANY($1)
   AND (e.recurring OR e.end_at >= $2 OR e.start_at >= $2)
 ORDER BY e.start_at ASC, e.id ASC`,
		ownerIDs, dayStart)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventsRepository) ListLineage(ctx context.Context, ownerID uuid.UUID) (events.Lineage, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT id, copied_from FROM events WHERE created_by = $1`, ownerID)
	if err != nil {
		return events.Lineage{}, fmt.Errorf("list lineage: %w", err)
	}
	defer rows.Close()

	var lineage events.Lineage
	for rows.Next() {
		var id uuid.UUID
		var copiedFrom *uuid.UUID
		if err := rows.Scan(&id, &copiedFrom); err != nil {
			return events.Lineage{}, fmt.Errorf("scan lineage: %w", err)
		}
		lineage.OwnEventIDs = append(lineage.OwnEventIDs, id)
		if copiedFrom != nil {
			lineage.CopiedSourceIDs = append(lineage.CopiedSourceIDs, *copiedFrom)
		}
	}
	return lineage, rows.Err()
}

// pastSortColumns maps the public sort fields onto order-by expressions.
// Values are fixed strings, never caller input.
var pastSortColumns = map[string]string{
	"date.end":   "e.end_at",
	"date.start": "e.start_at",
	"title":      "e.title",
	"createdAt":  "e.created_at",
}

func (r *EventsRepository) ListPast(ctx context.Context, ownerID uuid.UUID, now time.Time, filters events.PastFilters) ([]events.Event, int, error) {
	queryer := r.queryer()

	column, ok := pastSortColumns[filters.SortBy]
	if !ok {
		column = "e.end_at"
	}
	direction := "DESC"
	if filters.Order == "asc" {
		direction = "ASC"
	}

	where := `
 WHERE e.created_by = $1
   AND e.end_at < $2
   AND ($3::uuid IS NULL OR e.category_id = $3::uuid)
   AND ($4 = '' OR e.title ILIKE '%' || $4 || '%'
               OR e.venue ILIKE '%' || $4 || '%'
               OR e.city ILIKE '%' || $4 || '%')`

	var total int
	err := queryer.QueryRow(ctx, `SELECT count(*) FROM events e`+where,
		ownerID, now, filters.CategoryID, filters.Search).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count past events: %w", err)
	}

	offset := (filters.Page - 1) * filters.Limit
	rows, err := queryer.Query(ctx,
		`SELECT `+eventColumns+eventFrom+where+
			fmt.Sprintf(" ORDER BY %s %s, e.id ASC LIMIT $5 OFFSET $6", column, direction),
		ownerID, now, filters.CategoryID, filters.Search, filters.Limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list past events: %w", err)
	}
	matched, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return matched, total, nil
}

func (r *EventsRepository) ListConnectionPeers(ctx context.Context, userID uuid.UUID) ([]events.Peer, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT peer_id, hide_events FROM connections WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connection peers: %w", err)
	}
	defer rows.Close()

	var out []events.Peer
	for rows.Next() {
		var peer events.Peer
		if err := rows.Scan(&peer.ID, &peer.HideEvents); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		out = append(out, peer)
	}
	return out, rows.Err()
}

func (r *EventsRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]events.Category, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, icon, created_by, created_at
  FROM event_categories
 WHERE created_by IS NULL OR created_by = $1
 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []events.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *category)
	}
	return out, rows.Err()
}

func (r *EventsRepository) GetCategory(ctx context.Context, id uuid.UUID) (*events.Category, error) {
	row := r.queryer().QueryRow(ctx,
		`SELECT id, name, icon, created_by, created_at FROM event_categories WHERE id = $1`, id)
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrCategoryNotFound
		}
		return nil, err
	}
	return category, nil
}

func (r *EventsRepository) CreateCategory(ctx context.Context, category *events.Category) (*events.Category, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO event_categories (name, icon, created_by)
VALUES ($1, $2, $3)
RETURNING id, name, icon, created_by, created_at`,
		category.Name, nullIfEmpty(category.Icon), category.CreatedBy)
	created, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

func scanCategory(row rowScanner) (*events.Category, error) {
	var category events.Category
	var icon *string
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&category.ID, &category.Name, &icon, &category.CreatedBy, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}
	category.Icon = derefString(icon)
	if createdAt.Valid {
		category.CreatedAt = createdAt.Time
	}
	return &category, nil
}

func collectEvents(rows pgx.Rows) ([]events.Event, error) {
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *event)
	}
	return out, rows.Err()
}
