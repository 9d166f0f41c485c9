package events

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPastPage  = 1
	defaultPastLimit = 10
)

// pastSortFields is the whitelist of sortable fields for the past listing.
var pastSortFields = map[string]bool{
	"date.end":   true,
	"date.start": true,
	"title":      true,
	"createdAt":  true,
}

// ListFeed assembles the viewer's upcoming feed: their own events plus the
// events of connected peers the viewer has not hidden, minus private peer
// events and minus both sides of any copy relationship that crosses the
// viewer boundary. Recurring events always appear, with their next
// occurrence on or after the start of today.
func (s *Service) ListFeed(ctx context.Context, viewerID uuid.UUID) ([]FeedItem, error) {
	now := time.Now().UTC()
	dayStart := startOfDayUTC(now)

	peers, err := s.repo.ListConnectionPeers(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	owners := make([]uuid.UUID, 0, len(peers)+1)
	owners = append(owners, viewerID)
	for _, p := range peers {
		if !p.HideEvents {
			owners = append(owners, p.ID)
		}
	}

	candidates, err := s.repo.ListUpcomingByOwners(ctx, owners, dayStart)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}

	lineage, err := s.repo.ListLineage(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list lineage: %w", err)
	}
	ownIDs := make(map[uuid.UUID]bool, len(lineage.OwnEventIDs))
	for _, id := range lineage.OwnEventIDs {
		ownIDs[id] = true
	}
	copiedSources := make(map[uuid.UUID]bool, len(lineage.CopiedSourceIDs))
	for _, id := range lineage.CopiedSourceIDs {
		copiedSources[id] = true
	}

	feed := make([]FeedItem, 0, len(candidates))
	for _, event := range candidates {
		if event.CreatedBy != viewerID {
			if event.Private {
				continue
			}
			// The viewer already has their own copy of this event.
			if copiedSources[event.ID] {
				continue
			}
			// A peer's copy of one of the viewer's own events.
			if event.CopiedFrom != nil && ownIDs[*event.CopiedFrom] {
				continue
			}
		}
		item := FeedItem{Event: event}
		if event.Recurrence.IsRecurring {
			item.NextOccurrence = NextOccurrence(event, dayStart)
		}
		feed = append(feed, item)
	}
	return feed, nil
}

// ParsePastQuery builds PastFilters from request query parameters,
// applying defaults and rejecting unknown sort fields.
func ParsePastQuery(values url.Values) (PastFilters, error) {
	filters := PastFilters{
		Page:   defaultPastPage,
		Limit:  defaultPastLimit,
		SortBy: "date.end",
		Order:  "desc",
	}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return PastFilters{}, FilterError{Field: "page", Message: "must be a positive integer"}
		}
		filters.Page = page
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			return PastFilters{}, FilterError{Field: "limit", Message: "must be an integer between 1 and 100"}
		}
		filters.Limit = limit
	}
	if raw := values.Get("category"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return PastFilters{}, FilterError{Field: "category", Message: "must be a valid id"}
		}
		filters.CategoryID = &id
	}
	filters.Search = strings.TrimSpace(values.Get("search"))

	if raw := values.Get("sortBy"); raw != "" {
		if !pastSortFields[raw] {
			return PastFilters{}, FilterError{Field: "sortBy", Message: "must be one of date.end, date.start, title, createdAt"}
		}
		filters.SortBy = raw
	}
	if raw := values.Get("order"); raw != "" {
		order := strings.ToLower(raw)
		if order != "asc" && order != "desc" {
			return PastFilters{}, FilterError{Field: "order", Message: "must be asc or desc"}
		}
		filters.Order = order
	}
	return filters, nil
}

// ListPast returns the viewer's own past events, paginated. Connections
// never appear here.
func (s *Service) ListPast(ctx context.Context, viewerID uuid.UUID, filters PastFilters) (*PastPage, error) {
	now := time.Now().UTC()

	matched, total, err := s.repo.ListPast(ctx, viewerID, now, filters)
	if err != nil {
		return nil, fmt.Errorf("list past events: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + filters.Limit - 1) / filters.Limit
	}
	return &PastPage{
		Events: matched,
		Pagination: PaginationMeta{
			CurrentPage: filters.Page,
			TotalPages:  totalPages,
			TotalEvents: total,
			Limit:       filters.Limit,
		},
	}, nil
}
