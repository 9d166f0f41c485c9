package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/api/middleware"
	"github.com/gatherly/server/internal/api/respond"
	"github.com/gatherly/server/internal/domain/events"
	"github.com/gatherly/server/internal/metrics"
	"github.com/gatherly/server/internal/sanitize"
)

type EventsHandler struct {
	events *events.Service
	logger zerolog.Logger
}

func NewEventsHandler(eventService *events.Service, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		events: eventService,
		logger: logger.With().Str("component", "events_handler").Logger(),
	}
}

// Feed serves the upcoming feed: own events plus visible connection events.
func (h *EventsHandler) Feed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	feed, err := h.events.ListFeed(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	metrics.FeedDuration.Observe(time.Since(start).Seconds())

	respond.JSON(w, http.StatusOK, struct {
		Events []events.FeedItem `json:"events"`
	}{Events: feed})
}

func (h *EventsHandler) Past(w http.ResponseWriter, r *http.Request) {
	filters, err := events.ParsePastQuery(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	page, err := h.events.ListPast(r.Context(), middleware.UserID(r.Context()), filters)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, page)
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input events.CreateEventInput
	if err := respond.Decode(r, &input); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	created, err := h.events.Create(r.Context(), middleware.UserID(r.Context()), input)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	metrics.EventsCreated.WithLabelValues("original").Inc()

	respond.JSON(w, http.StatusCreated, created)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	event, err := h.events.Get(r.Context(), middleware.UserID(r.Context()), eventID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	var patch events.UpdateEventInput
	if err := respond.Decode(r, &patch); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	updated, err := h.events.Update(r.Context(), middleware.UserID(r.Context()), eventID, patch)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	if err := h.events.Delete(r.Context(), middleware.UserID(r.Context()), eventID); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "event deleted")
}

func (h *EventsHandler) TogglePrivacy(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	private, err := h.events.TogglePrivacy(r.Context(), middleware.UserID(r.Context()), eventID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		Private bool `json:"private"`
	}{Private: private})
}

// Copy takes a connection's shared event into the caller's own collection.
func (h *EventsHandler) Copy(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	copied, err := h.events.CopySharedEvent(r.Context(), middleware.UserID(r.Context()), eventID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	metrics.EventsCreated.WithLabelValues("copy").Inc()

	respond.JSON(w, http.StatusCreated, copied)
}

// Linked lists the copies other users made of the caller's event.
func (h *EventsHandler) Linked(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	copies, err := h.events.ListLinked(r.Context(), middleware.UserID(r.Context()), eventID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		Events []events.Event `json:"events"`
	}{Events: copies})
}

func (h *EventsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.events.ListCategories(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		Categories []events.Category `json:"categories"`
	}{Categories: categories})
}

func (h *EventsHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := respond.Decode(r, &input); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	input.Name = sanitize.Text(strings.TrimSpace(input.Name))
	if input.Name == "" {
		respond.BadRequest(w, "category name is required")
		return
	}

	userID := middleware.UserID(r.Context())
	created, err := h.events.CreateCategory(r.Context(), userID, input.Name, input.Icon)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, created)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return uuid.UUID{}, false
	}
	return id, true
}
