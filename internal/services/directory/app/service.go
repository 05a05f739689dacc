// Package app exposes the directory operations the view layer calls and
// runs the runtime that keeps them working offline.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mwslabs/dinesync/internal/services/directory/cache"
	"github.com/mwslabs/dinesync/internal/services/directory/domain"
	"github.com/mwslabs/dinesync/internal/services/directory/queue"
	"github.com/mwslabs/dinesync/internal/services/directory/storage"
	"github.com/mwslabs/dinesync/internal/services/directory/upstream"
)

// Service is the directory API for the view layer: cache-first reads,
// optimistic writes with durable queuing. Write lifecycle notifications
// (queued, confirmed) flow through the queue's Events, not the service.
type Service struct {
	cache *cache.Cache
	queue *queue.Queue
	api   *upstream.Client
}

// NewService wires the service.
func NewService(c *cache.Cache, q *queue.Queue, api *upstream.Client) (*Service, error) {
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	return &Service{cache: c, queue: q, api: api}, nil
}

// Restaurants returns the full directory.
func (s *Service) Restaurants(ctx context.Context) ([]domain.Restaurant, error) {
	return s.cache.FetchRestaurants(ctx)
}

// Restaurant returns one restaurant with its reviews attached.
func (s *Service) Restaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	return s.cache.FetchRestaurant(ctx, id)
}

// Reviews returns all reviews for one restaurant.
func (s *Service) Reviews(ctx context.Context, restaurantID int64) ([]domain.Review, error) {
	return s.cache.FetchReviews(ctx, restaurantID)
}

// RestaurantsByFilter returns the directory filtered by cuisine and
// neighborhood; domain.FilterAll disables either filter.
func (s *Service) RestaurantsByFilter(ctx context.Context, cuisine, neighborhood string) ([]domain.Restaurant, error) {
	restaurants, err := s.cache.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FilterByCuisineAndNeighborhood(restaurants, cuisine, neighborhood), nil
}

// Neighborhoods returns the distinct neighborhoods for the filter controls.
func (s *Service) Neighborhoods(ctx context.Context) ([]string, error) {
	restaurants, err := s.cache.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Neighborhoods(restaurants), nil
}

// Cuisines returns the distinct cuisine types for the filter controls.
func (s *Service) Cuisines(ctx context.Context) ([]string, error) {
	restaurants, err := s.cache.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Cuisines(restaurants), nil
}

// ToggleFavorite applies the favorite flag optimistically to both cached
// copies of the restaurant, then queues the origin update. The toggle
// succeeds even while offline; the PUT is delivered on the next drain.
func (s *Service) ToggleFavorite(ctx context.Context, id int64, favorite bool) error {
	if err := s.cache.SetFavorite(ctx, id, favorite); err != nil {
		return fmt.Errorf("apply favorite locally: %w", err)
	}
	if err := s.queue.Enqueue(ctx, storage.PendingOp{
		URL:    s.api.FavoriteURL(id, favorite),
		Method: http.MethodPut,
	}); err != nil {
		return fmt.Errorf("queue favorite update: %w", err)
	}
	return nil
}

// SubmitReview validates and caches a new review locally, then queues the
// origin POST. The returned review carries the locally assigned id; the
// origin copy replaces it on the next review refetch.
func (s *Service) SubmitReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := review.Validate(); err != nil {
		return domain.Review{}, err
	}
	if review.CreatedAt == 0 {
		review.CreatedAt = time.Now().UnixMilli()
	}

	// The queued body is marshaled before the local id is assigned: the
	// origin owns review ids, so the POST payload must not carry one.
	body, err := json.Marshal(review)
	if err != nil {
		return domain.Review{}, fmt.Errorf("encode review: %w", err)
	}

	if review.ID == 0 {
		review.ID = time.Now().UnixMilli()
	}
	if err := s.cache.AddLocalReview(ctx, review); err != nil {
		return domain.Review{}, fmt.Errorf("cache review locally: %w", err)
	}
	if err := s.queue.Enqueue(ctx, storage.PendingOp{
		URL:    s.api.ReviewsURL(),
		Method: http.MethodPost,
		Body:   body,
	}); err != nil {
		return domain.Review{}, fmt.Errorf("queue review submission: %w", err)
	}
	return review, nil
}

// PendingWrites returns how many writes await delivery, for the UI badge.
func (s *Service) PendingWrites(ctx context.Context) (int, error) {
	return s.queue.Pending(ctx)
}
