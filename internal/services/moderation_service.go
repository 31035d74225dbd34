// Package services – ModerationService
//
// This file implements the moderation state machine. Admins approve, reject
// or explicitly set the status of any recipe. Transitions are permissive: no
// (from, to) pair is refused, which lets an admin un-publish or re-open a
// recipe. Each transition is logged and counted by (from, to).
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

// DefaultRejectionReason is stored when a recipe is rejected without a reason.
const DefaultRejectionReason = "Not specified"

var moderationTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recipe_moderation_transitions_total",
		Help: "Moderation status transitions by source and target status.",
	},
	[]string{"from", "to"},
)

func init() {
	prometheus.MustRegister(moderationTransitions)
}

// ModerationService applies admin status transitions.
type ModerationService struct {
	DB   *gorm.DB
	Gate *authz.Gate
	// OnChange is called after a committed transition. May be nil.
	OnChange func(ctx context.Context)

	now func() time.Time
}

// NewModerationService wires a ModerationService.
func NewModerationService(db *gorm.DB, gate *authz.Gate) *ModerationService {
	return &ModerationService{DB: db, Gate: gate, now: time.Now}
}

// Approve publishes recipe id: publishedAt is set to now and any rejection
// reason is cleared.
func (s *ModerationService) Approve(ctx context.Context, actor auth.Actor, id string) (*domain.Recipe, error) {
	return s.SetStatus(ctx, actor, id, string(domain.StatusPublished), "")
}

// Reject marks recipe id rejected with reason, or DefaultRejectionReason when
// reason is blank. publishedAt is left as it was.
func (s *ModerationService) Reject(ctx context.Context, actor auth.Actor, id, reason string) (*domain.Recipe, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectionReason
	}
	return s.SetStatus(ctx, actor, id, string(domain.StatusRejected), reason)
}

// SetStatus moves recipe id to status. Moving to published stamps
// publishedAt; moving to rejected records reason (default "Not specified");
// any other target clears the rejection reason. The actor is authorized
// before the status is parsed; unknown statuses are a *ValidationError.
func (s *ModerationService) SetStatus(ctx context.Context, actor auth.Actor, id, status, reason string) (*domain.Recipe, error) {
	tr := otel.Tracer("services/ModerationService")
	ctx, span := tr.Start(ctx, "SetStatus",
		trace.WithAttributes(
			attribute.String("recipe.id", id),
			attribute.String("recipe.status", status),
		),
	)
	defer span.End()

	if err := s.Gate.Authorize(actor, authz.ActionModerate, nil); err != nil {
		return nil, err
	}
	to, ok := domain.ParseStatus(status)
	if !ok {
		return nil, invalid("status", "must be one of: draft, pending, published, rejected")
	}

	now := time.Now().UTC()
	if s.now != nil {
		now = s.now().UTC()
	}
	fields := map[string]any{"status": to}
	switch to {
	case domain.StatusPublished:
		fields["published_at"] = now
		fields["rejection_reason"] = ""
	case domain.StatusRejected:
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = DefaultRejectionReason
		}
		fields["rejection_reason"] = reason
	default:
		fields["rejection_reason"] = ""
	}

	var (
		from domain.Status
		out  *domain.Recipe
	)
	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		cur, err := repo.GetRecipe(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}
		from = cur.Status
		if err := repo.UpdateRecipeFields(ctx, tx, id, fields); err != nil {
			return err
		}
		out, err = repo.GetRecipe(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	moderationTransitions.WithLabelValues(string(from), string(to)).Inc()
	log.Info().
		Str("recipe_id", id).
		Str("admin_id", actor.UserID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("recipe status changed")
	if s.OnChange != nil {
		s.OnChange(ctx)
	}
	return out, nil
}

// Pending returns the moderation queue, newest first, with author name,
// avatar and email expanded.
func (s *ModerationService) Pending(ctx context.Context, actor auth.Actor) ([]domain.Recipe, error) {
	if err := s.Gate.Authorize(actor, authz.ActionModerate, nil); err != nil {
		return nil, err
	}
	return repo.PendingRecipes(ctx, s.DB)
}
