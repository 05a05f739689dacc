// Package upstream talks to the origin REST API for restaurants and reviews.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mwslabs/dinesync/internal/platform/timeouts"
	"github.com/mwslabs/dinesync/internal/services/directory/domain"
)

var (
	// ErrNetworkUnreachable indicates the request never produced an HTTP
	// response; for reads callers fall back to cached data, for writes the
	// operation stays queued.
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrUpstream indicates a response that is neither a success nor a
	// redirect; queued operations stay queued.
	ErrUpstream = errors.New("upstream error")
)

// IdempotencyKeyHeader carries the client-generated key that lets the origin
// de-duplicate replayed writes.
const IdempotencyKeyHeader = "Idempotency-Key"

// Client issues requests against the origin API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the origin API at baseURL.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.UpstreamRequest}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// RestaurantsURL returns the restaurants collection resource.
func (c *Client) RestaurantsURL() string {
	return c.baseURL + "/restaurants"
}

// ReviewsURL returns the reviews collection resource.
func (c *Client) ReviewsURL() string {
	return c.baseURL + "/reviews"
}

// FavoriteURL returns the favorite-flag resource for one restaurant.
func (c *Client) FavoriteURL(id int64, favorite bool) string {
	return fmt.Sprintf("%s/restaurants/%d/?is_favorite=%t", c.baseURL, id, favorite)
}

// ListRestaurants fetches the full restaurant collection.
func (c *Client) ListRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	var restaurants []domain.Restaurant
	if err := c.getJSON(ctx, c.RestaurantsURL(), &restaurants); err != nil {
		return nil, err
	}
	return restaurants, nil
}

// GetRestaurant fetches one restaurant by id.
func (c *Client) GetRestaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	var restaurant domain.Restaurant
	if err := c.getJSON(ctx, c.RestaurantsURL()+"/"+strconv.FormatInt(id, 10), &restaurant); err != nil {
		return domain.Restaurant{}, err
	}
	return restaurant, nil
}

// ListReviews fetches all reviews for one restaurant.
func (c *Client) ListReviews(ctx context.Context, restaurantID int64) ([]domain.Review, error) {
	var reviews []domain.Review
	url := fmt.Sprintf("%s/?restaurant_id=%d", c.ReviewsURL(), restaurantID)
	if err := c.getJSON(ctx, url, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview posts one review and returns the created record.
func (c *Client) CreateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	body, err := json.Marshal(review)
	if err != nil {
		return domain.Review{}, fmt.Errorf("encode review: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ReviewsURL(), bytes.NewReader(body))
	if err != nil {
		return domain.Review{}, fmt.Errorf("build review request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Review{}, fmt.Errorf("post review: %w", errors.Join(ErrNetworkUnreachable, err))
	}
	defer resp.Body.Close()

	if !delivered(resp) {
		return domain.Review{}, fmt.Errorf("post review: %w: status %d", ErrUpstream, resp.StatusCode)
	}

	var created domain.Review
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		// Some origins answer with an empty body; the submitted review is
		// still the authoritative local copy.
		return review, nil
	}
	return created, nil
}

// SetFavorite updates the favorite flag for one restaurant.
func (c *Client) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return c.Send(ctx, http.MethodPut, c.FavoriteURL(id, favorite), nil, "")
}

// Send performs one delivery attempt with the given method and body. It is
// the replay primitive for queued writes: a nil error means the operation
// was delivered and may be deleted from the queue.
func (c *Client) Send(ctx context.Context, method, url string, body []byte, idempotencyKey string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s %s: %w", method, url, errors.Join(ErrNetworkUnreachable, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if !delivered(resp) {
		return fmt.Errorf("send %s %s: %w: status %d", method, url, ErrUpstream, resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, errors.Join(ErrNetworkUnreachable, err))
	}
	defer resp.Body.Close()

	if !delivered(resp) {
		return fmt.Errorf("get %s: %w: status %d", url, ErrUpstream, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// delivered reports whether the response counts as a confirmed delivery:
// an HTTP success or a redirect, matching the ok-or-redirected judgment the
// queue uses to decide between deleting and keeping a pending record.
func delivered(resp *http.Response) bool {
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true
	}
	// A followed redirect leaves the final URL different from the request.
	return resp.Request != nil && resp.Request.Response != nil
}
