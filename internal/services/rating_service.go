// Package services – RatingService
//
// This file implements rating aggregation. A user rates a recipe at most once;
// rating again updates the existing entry in place. The recipe's average and
// count are recomputed from the ratings table in the same transaction as the
// rating write, after the recipe row has been locked, so concurrent raters on
// one recipe are serialized and no update is lost.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

var ratingsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recipe_ratings_total",
		Help: "Ratings written, by kind (created or updated).",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(ratingsTotal)
}

// RatingService records ratings and maintains the derived aggregate.
type RatingService struct {
	DB   *gorm.DB
	Gate *authz.Gate
	// OnChange is called after a committed rating. May be nil.
	OnChange func(ctx context.Context)
}

// Rate records value (1..5) and an optional review from the actor for recipe
// id and returns the recomputed aggregate. An empty review keeps the review
// of an earlier rating.
func (s *RatingService) Rate(ctx context.Context, actor auth.Actor, recipeID string, value int, review string) (domain.Aggregate, error) {
	tr := otel.Tracer("services/RatingService")
	ctx, span := tr.Start(ctx, "Rate",
		trace.WithAttributes(
			attribute.String("recipe.id", recipeID),
			attribute.String("user.id", actor.UserID),
			attribute.Int("rating", value),
		),
	)
	defer span.End()

	if value < 1 || value > 5 {
		return domain.Aggregate{}, invalid("rating", "must be an integer between 1 and 5")
	}
	if err := s.Gate.Authorize(actor, authz.ActionRate, nil); err != nil {
		return domain.Aggregate{}, err
	}

	var (
		agg  domain.Aggregate
		kind string
	)
	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		if err := repo.LockRecipe(ctx, tx, recipeID, time.Now().UTC()); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}

		existing, err := repo.GetRating(ctx, tx, recipeID, actor.UserID)
		switch {
		case err == nil:
			if review == "" {
				review = existing.Review
			}
			if err := repo.UpdateRating(ctx, tx, existing.ID, value, review); err != nil {
				return err
			}
			kind = "updated"
		case errors.Is(err, repo.ErrNotFound):
			if _, err := repo.CreateRating(ctx, tx, recipeID, actor.UserID, value, review); err != nil {
				return err
			}
			kind = "created"
		default:
			return err
		}

		count, sum, err := repo.RatingTotals(ctx, tx, recipeID)
		if err != nil {
			return err
		}
		agg = domain.Aggregate{RatingCount: int(count)}
		if count > 0 {
			agg.AverageRating = domain.RoundRating(float64(sum) / float64(count))
		}
		return repo.SetRecipeAggregate(ctx, tx, recipeID, agg.AverageRating, agg.RatingCount)
	})
	if err != nil {
		return domain.Aggregate{}, storageErr(err)
	}

	ratingsTotal.WithLabelValues(kind).Inc()
	span.SetAttributes(attribute.Float64("rating.average", agg.AverageRating), attribute.Int("rating.count", agg.RatingCount))
	if s.OnChange != nil {
		s.OnChange(ctx)
	}
	return agg, nil
}
