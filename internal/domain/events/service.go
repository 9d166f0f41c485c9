package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/sanitize"
)

// Service owns event CRUD, the visibility resolver and the copy workflow.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input CreateEventInput) (*Event, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if err := validateDateRange(input.Date); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetCategory(ctx, input.Category); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("check category: %w", err)
	}

	event := &Event{
		Title:       sanitize.Text(input.Title),
		Date:        normalizeDate(input.Date),
		Location:    toLocation(input.Location),
		Description: sanitize.HTML(strings.TrimSpace(input.Description)),
		CategoryID:  input.Category,
		Attributes:  input.Attributes,
		CreatedBy:   ownerID,
		Private:     input.Private,
		Unconfirmed: input.Unconfirmed,
		Recurrence:  toRecurrence(input.Recurrence),
	}
	if err := validateRecurrence(event.Recurrence, event.Date.Start); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info().
		Str("event_id", created.ID.String()).
		Str("user_id", ownerID.String()).
		Msg("event created")
	return created, nil
}

// Update applies a partial patch after the ownership check. When the patch
// moves the start to a different calendar day, every copy of this event is
// unlinked first, in the same transaction as the update.
func (s *Service) Update(ctx context.Context, ownerID, eventID uuid.UUID, patch UpdateEventInput) (*Event, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, validationError(err)
	}

	event, err := s.ownedEvent(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}

	previousStart := event.Date.Start
	if err := applyPatch(event, patch); err != nil {
		return nil, err
	}
	if err := validateRecurrence(event.Recurrence, event.Date.Start); err != nil {
		return nil, err
	}

	dayChanged := !sameDay(previousStart, event.Date.Start)

	var updated *Event
	err = s.repo.WithTx(ctx, func(ctx context.Context, r Repository) error {
		if dayChanged {
			unlinked, err := r.UnlinkCopies(ctx, event.ID)
			if err != nil {
				return fmt.Errorf("unlink copies: %w", err)
			}
			if unlinked > 0 {
				s.logger.Info().
					Str("event_id", event.ID.String()).
					Int64("copies", unlinked).
					Msg("copies unlinked after start day change")
			}
		}
		var err error
		updated, err = r.Update(ctx, event)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the event after the ownership check, unlinking any copies
// first so they become fully independent instead of dangling.
func (s *Service) Delete(ctx context.Context, ownerID, eventID uuid.UUID) error {
	event, err := s.ownedEvent(ctx, ownerID, eventID)
	if err != nil {
		return err
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, r Repository) error {
		if _, err := r.UnlinkCopies(ctx, event.ID); err != nil {
			return fmt.Errorf("unlink copies: %w", err)
		}
		if err := r.Delete(ctx, event.ID); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
}

// TogglePrivacy flips the private flag. A pure toggle: connections and
// existing copies are untouched.
func (s *Service) TogglePrivacy(ctx context.Context, ownerID, eventID uuid.UUID) (bool, error) {
	event, err := s.ownedEvent(ctx, ownerID, eventID)
	if err != nil {
		return false, err
	}

	event.Private = !event.Private
	if _, err := s.repo.Update(ctx, event); err != nil {
		return false, fmt.Errorf("toggle privacy: %w", err)
	}
	return event.Private, nil
}

func (s *Service) Get(ctx context.Context, ownerID, eventID uuid.UUID) (*Event, error) {
	return s.ownedEvent(ctx, ownerID, eventID)
}

func (s *Service) ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error) {
	return s.repo.ListCategories(ctx, userID)
}

// CreateCategory adds a category owned by the user, visible only to them.
func (s *Service) CreateCategory(ctx context.Context, userID uuid.UUID, name, icon string) (*Category, error) {
	created, err := s.repo.CreateCategory(ctx, &Category{
		Name:      name,
		Icon:      icon,
		CreatedBy: &userID,
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

func (s *Service) ownedEvent(ctx context.Context, ownerID, eventID uuid.UUID) (*Event, error) {
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != ownerID {
		return nil, ErrForbidden
	}
	return event, nil
}

func applyPatch(event *Event, patch UpdateEventInput) error {
	if patch.Title != nil {
		event.Title = sanitize.Text(strings.TrimSpace(*patch.Title))
	}
	if patch.Date != nil {
		if err := validateDateRange(*patch.Date); err != nil {
			return err
		}
		event.Date = normalizeDate(*patch.Date)
	}
	if patch.Location != nil {
		event.Location = toLocation(patch.Location)
	}
	if patch.Description != nil {
		event.Description = sanitize.HTML(strings.TrimSpace(*patch.Description))
	}
	if patch.Category != nil {
		event.CategoryID = *patch.Category
	}
	if patch.Attributes != nil {
		event.Attributes = patch.Attributes
	}
	if patch.Private != nil {
		event.Private = *patch.Private
	}
	if patch.Unconfirmed != nil {
		event.Unconfirmed = *patch.Unconfirmed
	}
	if patch.Recurrence != nil {
		event.Recurrence = toRecurrence(patch.Recurrence)
	}
	return nil
}

// normalizeDate defaults a missing end to the start instant.
func normalizeDate(date DateInput) DateRange {
	out := DateRange{Start: date.Start.UTC()}
	if date.End != nil {
		out.End = date.End.UTC()
	} else {
		out.End = out.Start
	}
	return out
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return startOfDayUTC(a).Equal(startOfDayUTC(b))
}
