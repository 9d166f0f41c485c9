package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Location struct {
	Venue string `json:"venue,omitempty"`
	City  string `json:"city,omitempty"`
}

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

type RecurrencePattern struct {
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	DaysOfWeek []int      `json:"daysOfWeek,omitempty"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
	Count      *int       `json:"count,omitempty"`
}

type Recurrence struct {
	IsRecurring bool               `json:"isRecurring"`
	Pattern     *RecurrencePattern `json:"pattern,omitempty"`
}

type Category struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Icon      string     `json:"icon"`
	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Event struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Date        DateRange      `json:"date"`
	Location    Location       `json:"location"`
	Description string         `json:"description,omitempty"`
	CategoryID  uuid.UUID      `json:"categoryId"`
	Category    *Category      `json:"category,omitempty"`
	Attributes  map[string]any `json:"additionalAttributes,omitempty"`
	CreatedBy   uuid.UUID      `json:"createdBy"`
	CreatorName string         `json:"createdByName,omitempty"`
	Private     bool           `json:"private"`
	Unconfirmed bool           `json:"unConfirmed"`
	CopiedFrom  *uuid.UUID     `json:"copiedFrom"`
	Recurrence  Recurrence     `json:"recurrence"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Peer is one entry of the viewer's connection list, as seen by the
// visibility resolver. HideEvents is the viewer's own preference.
type Peer struct {
	ID         uuid.UUID
	HideEvents bool
}

// FeedItem is an event in the upcoming feed. NextOccurrence is populated
// for recurring events only.
type FeedItem struct {
	Event
	NextOccurrence *time.Time `json:"nextOccurrence,omitempty"`
}

type PastFilters struct {
	Page       int
	Limit      int
	CategoryID *uuid.UUID
	Search     string
	SortBy     string
	Order      string
}

type PaginationMeta struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalEvents int `json:"totalEvents"`
	Limit       int `json:"limit"`
}

type PastPage struct {
	Events     []Event        `json:"events"`
	Pagination PaginationMeta `json:"pagination"`
}

// Lineage is what the resolver needs to know about the viewer's own
// events: their ids, and the set of source ids the viewer has already
// copied.
type Lineage struct {
	OwnEventIDs     []uuid.UUID
	CopiedSourceIDs []uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, event *Event) (*Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	Update(ctx context.Context, event *Event) (*Event, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// UnlinkCopies clears copied_from on every event that references the
	// given source, returning how many were unlinked.
	UnlinkCopies(ctx context.Context, sourceID uuid.UUID) (int64, error)

	// ListCopies returns the events whose copied_from references the source.
	ListCopies(ctx context.Context, sourceID uuid.UUID) ([]Event, error)

	// HasCopy reports whether the owner already created a copy of the source.
	HasCopy(ctx context.Context, ownerID, sourceID uuid.UUID) (bool, error)

	// ListUpcomingByOwners returns events created by any of the owners that
	// pass the temporal filter: recurring events always, otherwise
	// end >= dayStart or start >= dayStart. Sorted ascending by start, with
	// category and creator name joined.
	ListUpcomingByOwners(ctx context.Context, ownerIDs []uuid.UUID, dayStart time.Time) ([]Event, error)

	// ListLineage returns the owner's event ids and copied source ids.
	ListLineage(ctx context.Context, ownerID uuid.UUID) (Lineage, error)

	// ListPast returns the owner's events with end < now, filtered, sorted
	// and paginated, along with the total match count.
	ListPast(ctx context.Context, ownerID uuid.UUID, now time.Time, filters PastFilters) ([]Event, int, error)

	// ListConnectionPeers returns the user's connection list with the
	// user's own hide preference per peer.
	ListConnectionPeers(ctx context.Context, userID uuid.UUID) ([]Peer, error)

	// ListCategories returns global categories plus the user's own, sorted
	// by name.
	ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*Category, error)
	CreateCategory(ctx context.Context, category *Category) (*Category, error)

	// WithTx runs fn inside a transaction; every repository call made through
	// the passed Repository joins it. Either all writes commit or none do.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
