package loyalty

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qahwa/cafe-api/internal/pkg/realtime"
)

// EventBalanceUpdated is pushed whenever a member's balance changes
const EventBalanceUpdated = "loyalty.balance_updated"

// Publisher delivers events to a user's open connections
type Publisher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, event realtime.Event) error
}

type noopPublisher struct{}

func (noopPublisher) SendToUser(context.Context, uuid.UUID, realtime.Event) error { return nil }

// BalanceEvent is the payload of EventBalanceUpdated
type BalanceEvent struct {
	AvailablePoints int    `json:"available_points"`
	TotalPoints     int    `json:"total_points"`
	Tier            Tier   `json:"tier"`
	Reason          string `json:"reason"`
}

// NotifyBalance pushes the profile's balance to the member. Callers that
// changed the balance inside their own transaction call it after commit.
func (s *Service) NotifyBalance(ctx context.Context, p *Profile, reason string) {
	s.publishBalance(ctx, p, reason)
}

func (s *Service) publishBalance(ctx context.Context, p *Profile, reason string) {
	if p == nil {
		return
	}
	err := s.publisher.SendToUser(ctx, p.UserID, realtime.Event{
		Type: EventBalanceUpdated,
		Data: BalanceEvent{
			AvailablePoints: p.AvailablePoints,
			TotalPoints:     p.TotalPoints,
			Tier:            p.Tier,
			Reason:          reason,
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", p.UserID.String()).Msg("failed to publish balance event")
	}
}
