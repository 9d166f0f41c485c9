package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	connectionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	connectionCodeLength   = 8

	// ConnectionCodeTTL is the fixed lifetime of an issued code.
	ConnectionCodeTTL = time.Hour

	maxCodeAttempts = 10
)

// IssueConnectionCode generates a fresh code for the user, replacing any
// previous one. Codes are unique among live codes only; an expired code may
// be handed out again.
func (s *Service) IssueConnectionCode(ctx context.Context, userID uuid.UUID) (*ConnectionCode, error) {
	now := time.Now().UTC()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode(connectionCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate connection code: %w", err)
		}

		inUse, err := s.repo.CodeInUse(ctx, code, now)
		if err != nil {
			return nil, fmt.Errorf("check connection code: %w", err)
		}
		if inUse {
			continue
		}

		issued := ConnectionCode{Code: code, ExpiresAt: now.Add(ConnectionCodeTTL)}
		if err := s.repo.SetConnectionCode(ctx, userID, issued); err != nil {
			if errors.Is(err, ErrCodeTaken) {
				// Lost the race against a concurrent issuer; roll the dice again.
				continue
			}
			return nil, fmt.Errorf("store connection code: %w", err)
		}

		return &issued, nil
	}

	return nil, fmt.Errorf("could not find a free connection code after %d attempts", maxCodeAttempts)
}

// RedeemConnectionCode claims a live code and creates the mutual edge
// between the requester and the code's owner. The claim and both edge
// inserts happen in one transaction; a BadRequest-style failure rolls the
// claim back so the code stays usable.
func (s *Service) RedeemConnectionCode(ctx context.Context, userID uuid.UUID, code string) (*PeerSummary, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrCodeNotFound
	}

	now := time.Now().UTC()

	var peer *PeerSummary
	err := s.repo.WithTx(ctx, func(ctx context.Context, r Repository) error {
		owner, err := r.ClaimConnectionCode(ctx, code, now)
		if err != nil {
			return err
		}
		if owner.ID == userID {
			return ErrSelfConnection
		}

		connected, err := r.HasConnection(ctx, userID, owner.ID)
		if err != nil {
			return fmt.Errorf("check connection: %w", err)
		}
		if connected {
			return ErrAlreadyConnected
		}

		if err := r.AddConnection(ctx, userID, owner.ID); err != nil {
			return fmt.Errorf("add connection: %w", err)
		}
		if err := r.AddConnection(ctx, owner.ID, userID); err != nil {
			return fmt.Errorf("add reverse connection: %w", err)
		}

		peer = owner
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID.String()).
		Str("peer_id", peer.ID.String()).
		Msg("connection created")
	return peer, nil
}

// RemoveConnection deletes the edge from both sides atomically.
func (s *Service) RemoveConnection(ctx context.Context, userID, peerID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, r Repository) error {
		removed, err := r.RemoveConnection(ctx, userID, peerID)
		if err != nil {
			return fmt.Errorf("remove connection: %w", err)
		}
		if !removed {
			return ErrConnectionNotFound
		}
		if _, err := r.RemoveConnection(ctx, peerID, userID); err != nil {
			return fmt.Errorf("remove reverse connection: %w", err)
		}
		return nil
	})
}

// SetHideEvents updates the requester's own side of the edge only.
func (s *Service) SetHideEvents(ctx context.Context, userID, peerID uuid.UUID, hide bool) error {
	updated, err := s.repo.SetHideEvents(ctx, userID, peerID, hide)
	if err != nil {
		return fmt.Errorf("set hide events: %w", err)
	}
	if !updated {
		return ErrNotConnected
	}
	return nil
}

func (s *Service) ListConnections(ctx context.Context, userID uuid.UUID) ([]Connection, error) {
	return s.repo.ListConnections(ctx, userID)
}

func generateCode(length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)
	max := big.NewInt(int64(len(connectionCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(connectionCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
