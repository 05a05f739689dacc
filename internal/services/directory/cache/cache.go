// Package cache resolves directory reads store-first with network fallback,
// and applies optimistic updates for locally issued writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mwslabs/dinesync/internal/services/directory/domain"
	"github.com/mwslabs/dinesync/internal/services/directory/storage"
)

// ErrUnavailable indicates a read that missed the cache while the origin
// was unreachable: there is nothing to serve.
var ErrUnavailable = errors.New("no cached data and origin unreachable")

// Store is the slice of the persistent store the cache needs.
type Store interface {
	storage.RestaurantStore
	storage.ReviewStore
}

// Fetcher issues origin reads on a cache miss.
type Fetcher interface {
	ListRestaurants(ctx context.Context) ([]domain.Restaurant, error)
	GetRestaurant(ctx context.Context, id int64) (domain.Restaurant, error)
	ListReviews(ctx context.Context, restaurantID int64) ([]domain.Review, error)
}

// Cache is a read-through cache over the persistent store and the origin
// API. A nil store degrades every read to network-only (used when the local
// store failed to open).
type Cache struct {
	store   Store
	fetcher Fetcher
}

// New returns a cache backed by store and fetcher. store may be nil.
func New(store Store, fetcher Fetcher) (*Cache, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	return &Cache{store: store, fetcher: fetcher}, nil
}

// FetchRestaurants returns the full restaurant collection: the cached
// snapshot when present, otherwise the origin list, which is then written
// as the snapshot plus one record per contained restaurant (fan-out).
func (c *Cache) FetchRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	if c.store != nil {
		record, err := c.store.GetRestaurant(ctx, storage.SnapshotID)
		if err == nil {
			var restaurants []domain.Restaurant
			if err := json.Unmarshal(record.Payload, &restaurants); err == nil {
				return restaurants, nil
			}
			log.Printf("decode cached restaurant snapshot: corrupt payload, refetching")
		} else if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read restaurant snapshot: %v", err)
		}
	}

	restaurants, err := c.fetcher.ListRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch restaurants: %w", errors.Join(ErrUnavailable, err))
	}

	if c.store != nil {
		if err := c.populateRestaurants(ctx, restaurants); err != nil {
			// The caller still gets fresh data; only the cache fill failed.
			log.Printf("populate restaurant cache: %v", err)
		}
	}
	return restaurants, nil
}

// FetchRestaurant returns one restaurant by id, cached copy first. Cached
// reviews are attached best-effort the way the origin embeds them; a review
// lookup failure never fails the restaurant read.
func (c *Cache) FetchRestaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	restaurant, err := c.lookupRestaurant(ctx, id)
	if err != nil {
		return domain.Restaurant{}, err
	}

	if reviews, err := c.FetchReviews(ctx, id); err == nil {
		restaurant.Reviews = reviews
	}
	return restaurant, nil
}

// FetchReviews returns all reviews for one restaurant, cached copies first
// via the restaurant index, otherwise from the origin.
func (c *Cache) FetchReviews(ctx context.Context, restaurantID int64) ([]domain.Review, error) {
	if c.store != nil {
		records, err := c.store.GetReviewsByRestaurant(ctx, restaurantID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read cached reviews: %v", err)
		}
		if len(records) > 0 {
			reviews := make([]domain.Review, 0, len(records))
			for _, record := range records {
				var review domain.Review
				if err := json.Unmarshal(record.Payload, &review); err != nil {
					return nil, fmt.Errorf("decode cached review %d: %w", record.ID, err)
				}
				reviews = append(reviews, review)
			}
			return reviews, nil
		}
	}

	reviews, err := c.fetcher.ListReviews(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("fetch reviews: %w", errors.Join(ErrUnavailable, err))
	}

	if c.store != nil {
		records := make([]storage.ReviewRecord, 0, len(reviews))
		for _, review := range reviews {
			payload, err := json.Marshal(review)
			if err != nil {
				return nil, fmt.Errorf("encode review %d: %w", review.ID, err)
			}
			records = append(records, storage.ReviewRecord{
				ID:           review.ID,
				RestaurantID: restaurantID,
				Payload:      payload,
			})
		}
		if err := c.store.ReplaceReviews(ctx, restaurantID, records); err != nil {
			log.Printf("populate review cache: %v", err)
		}
	}
	return reviews, nil
}

// SetFavorite applies a favorite toggle to the cached copies of restaurant
// id: the per-entity record and its copy inside the collection snapshot.
// The two writes run entity first, snapshot second; a reader between them
// can observe the entity updated and the snapshot stale.
func (c *Cache) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	if c.store == nil {
		return nil
	}

	entityErr := c.updateFavoriteRecord(ctx, id, favorite)
	snapshotErr := c.updateFavoriteInSnapshot(ctx, id, favorite)
	return errors.Join(entityErr, snapshotErr)
}

// AddLocalReview caches a locally authored review so reads reflect it before
// the origin confirms the submission. The local id mirrors the submission
// timestamp and is replaced by the origin copy on the next review refetch.
func (c *Cache) AddLocalReview(ctx context.Context, review domain.Review) error {
	if c.store == nil {
		return nil
	}
	if review.ID == 0 {
		review.ID = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("encode local review: %w", err)
	}
	if err := c.store.PutReview(ctx, storage.ReviewRecord{
		ID:           review.ID,
		RestaurantID: review.RestaurantID,
		Payload:      payload,
	}); err != nil {
		return fmt.Errorf("cache local review: %w", err)
	}
	return nil
}

func (c *Cache) lookupRestaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	if c.store != nil {
		record, err := c.store.GetRestaurant(ctx, id)
		if err == nil {
			var restaurant domain.Restaurant
			if err := json.Unmarshal(record.Payload, &restaurant); err == nil {
				return restaurant, nil
			}
			log.Printf("decode cached restaurant %d: corrupt payload, refetching", id)
		} else if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read cached restaurant %d: %v", id, err)
		}
	}

	restaurant, err := c.fetcher.GetRestaurant(ctx, id)
	if err != nil {
		return domain.Restaurant{}, fmt.Errorf("fetch restaurant %d: %w", id, errors.Join(ErrUnavailable, err))
	}

	if c.store != nil {
		payload, err := json.Marshal(restaurant)
		if err != nil {
			return domain.Restaurant{}, fmt.Errorf("encode restaurant %d: %w", id, err)
		}
		if err := c.store.PutRestaurant(ctx, storage.RestaurantRecord{ID: id, Payload: payload}); err != nil {
			log.Printf("populate restaurant cache: %v", err)
		}
	}
	return restaurant, nil
}

func (c *Cache) populateRestaurants(ctx context.Context, restaurants []domain.Restaurant) error {
	snapshot, err := json.Marshal(restaurants)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	records := make([]storage.RestaurantRecord, 0, len(restaurants))
	for _, restaurant := range restaurants {
		payload, err := json.Marshal(restaurant)
		if err != nil {
			return fmt.Errorf("encode restaurant %d: %w", restaurant.ID, err)
		}
		records = append(records, storage.RestaurantRecord{ID: restaurant.ID, Payload: payload})
	}
	return c.store.ReplaceRestaurants(ctx, snapshot, records)
}

func (c *Cache) updateFavoriteRecord(ctx context.Context, id int64, favorite bool) error {
	record, err := c.store.GetRestaurant(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read restaurant %d: %w", id, err)
	}

	var restaurant domain.Restaurant
	if err := json.Unmarshal(record.Payload, &restaurant); err != nil {
		return fmt.Errorf("decode restaurant %d: %w", id, err)
	}
	restaurant.IsFavorite = favorite
	payload, err := json.Marshal(restaurant)
	if err != nil {
		return fmt.Errorf("encode restaurant %d: %w", id, err)
	}
	if err := c.store.PutRestaurant(ctx, storage.RestaurantRecord{ID: id, Payload: payload}); err != nil {
		return fmt.Errorf("write restaurant %d: %w", id, err)
	}
	return nil
}

func (c *Cache) updateFavoriteInSnapshot(ctx context.Context, id int64, favorite bool) error {
	record, err := c.store.GetRestaurant(ctx, storage.SnapshotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var restaurants []domain.Restaurant
	if err := json.Unmarshal(record.Payload, &restaurants); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	updated := false
	for i := range restaurants {
		if restaurants[i].ID == id {
			restaurants[i].IsFavorite = favorite
			updated = true
			break
		}
	}
	if !updated {
		return nil
	}

	payload, err := json.Marshal(restaurants)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.store.PutRestaurant(ctx, storage.RestaurantRecord{ID: storage.SnapshotID, Payload: payload}); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
