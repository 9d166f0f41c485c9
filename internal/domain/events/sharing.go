package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CopySharedEvent copies a connection's event into the viewer's own
// collection. The copy records its source in CopiedFrom, which suppresses
// the source from the viewer's feed and the copy from the source owner's
// feed. A source can be copied at most once per viewer.
func (s *Service) CopySharedEvent(ctx context.Context, viewerID, sourceID uuid.UUID) (*Event, error) {
	var copied *Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, r Repository) error {
		source, err := r.GetByID(ctx, sourceID)
		if err != nil {
			return err
		}
		if source.CreatedBy == viewerID {
			return ErrSelfCopy
		}
		visible, err := s.sourceVisible(ctx, r, viewerID, source)
		if err != nil {
			return err
		}
		if !visible {
			// Not distinguishable from a missing event.
			return ErrNotFound
		}

		exists, err := r.HasCopy(ctx, viewerID, source.ID)
		if err != nil {
			return fmt.Errorf("check existing copy: %w", err)
		}
		if exists {
			return ErrAlreadyCopied
		}

		clone := &Event{
			Title:       source.Title,
			Date:        source.Date,
			Location:    source.Location,
			Description: source.Description,
			CategoryID:  source.CategoryID,
			Attributes:  source.Attributes,
			CreatedBy:   viewerID,
			Private:     source.Private,
			Unconfirmed: source.Unconfirmed,
			CopiedFrom:  &source.ID,
			Recurrence:  source.Recurrence,
		}
		copied, err = r.Create(ctx, clone)
		if err != nil {
			return fmt.Errorf("create copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("event_id", copied.ID.String()).
		Str("source_id", sourceID.String()).
		Str("user_id", viewerID.String()).
		Msg("event copied")
	return copied, nil
}

// ListLinked returns the copies made from one of the caller's own events.
func (s *Service) ListLinked(ctx context.Context, ownerID, eventID uuid.UUID) ([]Event, error) {
	if _, err := s.ownedEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	copies, err := s.repo.ListCopies(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list copies: %w", err)
	}
	return copies, nil
}

// sourceVisible reports whether the viewer is allowed to see the source
// event: its creator must be a connection the viewer has not hidden, and
// the event must not be private.
func (s *Service) sourceVisible(ctx context.Context, r Repository, viewerID uuid.UUID, source *Event) (bool, error) {
	if source.Private {
		return false, nil
	}
	peers, err := r.ListConnectionPeers(ctx, viewerID)
	if err != nil {
		return false, fmt.Errorf("list connections: %w", err)
	}
	for _, p := range peers {
		if p.ID == source.CreatedBy {
			return !p.HideEvents, nil
		}
	}
	return false, nil
}
