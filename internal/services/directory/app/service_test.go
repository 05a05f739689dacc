package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mwslabs/dinesync/internal/services/directory/cache"
	"github.com/mwslabs/dinesync/internal/services/directory/domain"
	"github.com/mwslabs/dinesync/internal/services/directory/queue"
	"github.com/mwslabs/dinesync/internal/services/directory/storage"
	"github.com/mwslabs/dinesync/internal/services/directory/storage/sqlite"
	"github.com/mwslabs/dinesync/internal/services/directory/upstream"
)

// fakeOrigin plays both roles of the origin API: the fetcher the cache
// reads from and the sender the queue delivers to. The offline flag fails
// both the way a dead network does.
type fakeOrigin struct {
	mu          sync.Mutex
	offline     bool
	restaurants []domain.Restaurant
	reviews     map[int64][]domain.Review
	delivered   []deliveredOp
}

type deliveredOp struct {
	method string
	url    string
	body   []byte
}

func (f *fakeOrigin) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeOrigin) ListRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, upstream.ErrNetworkUnreachable
	}
	return append([]domain.Restaurant(nil), f.restaurants...), nil
}

func (f *fakeOrigin) GetRestaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return domain.Restaurant{}, upstream.ErrNetworkUnreachable
	}
	for _, r := range f.restaurants {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Restaurant{}, upstream.ErrUpstream
}

func (f *fakeOrigin) ListReviews(ctx context.Context, restaurantID int64) ([]domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, upstream.ErrNetworkUnreachable
	}
	return append([]domain.Review(nil), f.reviews[restaurantID]...), nil
}

func (f *fakeOrigin) Send(ctx context.Context, method, url string, body []byte, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return upstream.ErrNetworkUnreachable
	}
	f.delivered = append(f.delivered, deliveredOp{method: method, url: url, body: body})
	return nil
}

func (f *fakeOrigin) deliveredOps() []deliveredOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deliveredOp(nil), f.delivered...)
}

func TestOfflineFavoriteToggleSurvivesUntilDelivery(t *testing.T) {
	ctx := context.Background()
	origin := &fakeOrigin{restaurants: []domain.Restaurant{
		{ID: 1, Name: "Mission Chinese Food"},
		{ID: 2, Name: "Emily"},
	}}
	svc, writeQueue, api := newService(t, origin)

	// Warm the cache while online.
	if _, err := svc.Restaurants(ctx); err != nil {
		t.Fatalf("warm restaurants: %v", err)
	}

	origin.setOffline(true)

	if err := svc.ToggleFavorite(ctx, 2, true); err != nil {
		t.Fatalf("toggle favorite offline: %v", err)
	}

	// Both cached copies reflect the toggle with no network.
	restaurants, err := svc.Restaurants(ctx)
	if err != nil {
		t.Fatalf("restaurants offline: %v", err)
	}
	if !restaurants[1].IsFavorite {
		t.Fatal("snapshot copy not updated by offline toggle")
	}
	one, err := svc.Restaurant(ctx, 2)
	if err != nil {
		t.Fatalf("restaurant offline: %v", err)
	}
	if !one.IsFavorite {
		t.Fatal("entity copy not updated by offline toggle")
	}

	pending, err := svc.PendingWrites(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d, want the queued favorite PUT", pending)
	}
	if got := origin.deliveredOps(); len(got) != 0 {
		t.Fatalf("delivered while offline: %v", got)
	}

	// Connectivity returns; the queued write drains and is deleted.
	origin.setOffline(false)
	if err := writeQueue.Drain(ctx); err != nil {
		t.Fatalf("drain after reconnect: %v", err)
	}
	delivered := origin.deliveredOps()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d ops, want 1", len(delivered))
	}
	if delivered[0].method != http.MethodPut || delivered[0].url != api.FavoriteURL(2, true) {
		t.Fatalf("delivered %s %s, want PUT %s", delivered[0].method, delivered[0].url, api.FavoriteURL(2, true))
	}
	pending, err = svc.PendingWrites(ctx)
	if err != nil {
		t.Fatalf("pending after drain: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d after drain, want 0", pending)
	}
}

func TestOfflineReviewSubmissionReadableAndQueued(t *testing.T) {
	ctx := context.Background()
	origin := &fakeOrigin{
		restaurants: []domain.Restaurant{{ID: 3, Name: "Superiority Burger"}},
		reviews:     map[int64][]domain.Review{},
	}
	svc, writeQueue, _ := newService(t, origin)

	origin.setOffline(true)

	review, err := svc.SubmitReview(ctx, domain.Review{
		RestaurantID: 3, Name: "Ana", Rating: 5, Comments: "best veggie burger",
	})
	if err != nil {
		t.Fatalf("submit review offline: %v", err)
	}
	if review.ID == 0 {
		t.Fatal("expected a locally assigned review id")
	}

	reviews, err := svc.Reviews(ctx, 3)
	if err != nil {
		t.Fatalf("reviews offline: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Comments != "best veggie burger" {
		t.Fatalf("offline reviews = %+v, want the local submission", reviews)
	}

	origin.setOffline(false)
	if err := writeQueue.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	delivered := origin.deliveredOps()
	if len(delivered) != 1 || delivered[0].method != http.MethodPost {
		t.Fatalf("delivered = %v, want one POST", delivered)
	}
	if len(delivered[0].body) == 0 {
		t.Fatal("review POST delivered without body")
	}
}

func TestSubmitReviewBodyOmitsLocalID(t *testing.T) {
	ctx := context.Background()
	origin := &fakeOrigin{reviews: map[int64][]domain.Review{}}
	svc, writeQueue, _ := newService(t, origin)

	review, err := svc.SubmitReview(ctx, domain.Review{
		RestaurantID: 3, Name: "Ana", Rating: 5, Comments: "great",
	})
	if err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if review.ID == 0 {
		t.Fatal("expected a locally assigned review id")
	}
	if err := writeQueue.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	delivered := origin.deliveredOps()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d ops, want 1", len(delivered))
	}
	// The origin owns review ids: the POST carries only the submission
	// fields, never the locally assigned id.
	var payload map[string]any
	if err := json.Unmarshal(delivered[0].body, &payload); err != nil {
		t.Fatalf("decode delivered body: %v", err)
	}
	if _, ok := payload["id"]; ok {
		t.Fatalf("delivered body carries a client id: %s", delivered[0].body)
	}
	for _, field := range []string{"restaurant_id", "name", "rating", "comments", "createdAt"} {
		if _, ok := payload[field]; !ok {
			t.Fatalf("delivered body missing %q: %s", field, delivered[0].body)
		}
	}
}

func TestSubmitReviewRejectsInvalid(t *testing.T) {
	origin := &fakeOrigin{}
	svc, _, _ := newService(t, origin)

	_, err := svc.SubmitReview(context.Background(), domain.Review{
		RestaurantID: 3, Name: "Ana", Rating: 9,
	})
	if err == nil {
		t.Fatal("expected out-of-range rating to be rejected")
	}
	pending, pendingErr := svc.PendingWrites(context.Background())
	if pendingErr != nil {
		t.Fatalf("pending: %v", pendingErr)
	}
	if pending != 0 {
		t.Fatalf("pending = %d, invalid review must not queue", pending)
	}
}

func TestFilterProjections(t *testing.T) {
	ctx := context.Background()
	origin := &fakeOrigin{restaurants: []domain.Restaurant{
		{ID: 1, Neighborhood: "Manhattan", CuisineType: "Asian"},
		{ID: 2, Neighborhood: "Brooklyn", CuisineType: "Pizza"},
		{ID: 3, Neighborhood: "Brooklyn", CuisineType: "Asian"},
	}}
	svc, _, _ := newService(t, origin)

	neighborhoods, err := svc.Neighborhoods(ctx)
	if err != nil {
		t.Fatalf("neighborhoods: %v", err)
	}
	if len(neighborhoods) != 2 || neighborhoods[0] != "Manhattan" {
		t.Fatalf("neighborhoods = %v", neighborhoods)
	}

	cuisines, err := svc.Cuisines(ctx)
	if err != nil {
		t.Fatalf("cuisines: %v", err)
	}
	if len(cuisines) != 2 {
		t.Fatalf("cuisines = %v", cuisines)
	}

	filtered, err := svc.RestaurantsByFilter(ctx, "Asian", "Brooklyn")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != 3 {
		t.Fatalf("filtered = %+v, want only restaurant 3", filtered)
	}

	all, err := svc.RestaurantsByFilter(ctx, domain.FilterAll, domain.FilterAll)
	if err != nil {
		t.Fatalf("filter all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("wildcard filter = %d restaurants, want 3", len(all))
	}
}

func TestOfflineReadWithColdCacheFails(t *testing.T) {
	origin := &fakeOrigin{offline: true}
	svc, _, _ := newService(t, origin)

	_, err := svc.Restaurants(context.Background())
	if !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable on cold offline read", err)
	}
}

func newService(t *testing.T, origin *fakeOrigin) (*Service, *queue.Queue, *upstream.Client) {
	t.Helper()
	store := openTempStore(t)
	readCache, err := cache.New(store, origin)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	writeQueue, err := queue.New(store, origin, nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	api, err := upstream.New("http://origin.test", nil)
	if err != nil {
		t.Fatalf("new upstream client: %v", err)
	}
	svc, err := NewService(readCache, writeQueue, api)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, writeQueue, api
}

func openTempStore(t *testing.T) storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.db")
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
