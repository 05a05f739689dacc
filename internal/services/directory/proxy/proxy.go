// Package proxy intercepts the web app's requests and serves them from
// local caches while the origin is unreachable: the app shell and images
// from the disk asset cache, API reads from the persistent store, API
// writes passed through uncached.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/mwslabs/dinesync/internal/services/directory/storage"
	"github.com/mwslabs/dinesync/internal/services/directory/upstream"
)

// imageSuffix matches the resolution suffix of responsive image URLs, e.g.
// photo-800px.jpg or photo-300_small.jpg. The canonical storage key is the
// URL with the whole suffix stripped, so every resolution of one photo
// shares a single cached entry.
var imageSuffix = regexp.MustCompile(`-\d+(px|_small|_medium|_large)\.jpg$`)

// Store is the slice of the persistent store the proxy reads and fills.
type Store interface {
	storage.RestaurantStore
	storage.ReviewStore
}

// Config wires the interception handler.
type Config struct {
	// ShellOrigin serves the static app shell and images.
	ShellOrigin string
	// API is the origin REST endpoint for restaurants and reviews.
	API *upstream.Client
	// Store caches API reads; nil degrades API GETs to pass-through.
	Store Store
	// Assets caches shell files and images; nil disables asset caching.
	Assets *AssetCache
	// ImagePathPrefix marks image requests, default "/images/".
	ImagePathPrefix string
}

// Handler classifies intercepted requests by path and method and routes
// them to the matching cache, mirroring the service-worker fetch handler
// it replaces.
type Handler struct {
	shellOrigin string
	api         *upstream.Client
	store       Store
	assets      *AssetCache
	imagePrefix string
	passthrough *http.Client
}

// New returns the interception handler.
func New(cfg Config) (*Handler, error) {
	cfg.ShellOrigin = strings.TrimRight(strings.TrimSpace(cfg.ShellOrigin), "/")
	if cfg.ShellOrigin == "" {
		return nil, fmt.Errorf("shell origin is required")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if cfg.ImagePathPrefix == "" {
		cfg.ImagePathPrefix = "/images/"
	}
	return &Handler{
		shellOrigin: cfg.ShellOrigin,
		api:         cfg.API,
		store:       cfg.Store,
		assets:      cfg.Assets,
		imagePrefix: cfg.ImagePathPrefix,
		passthrough: &http.Client{},
	}, nil
}

// ServeHTTP classifies one intercepted request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/restaurants") || strings.HasPrefix(path, "/reviews"):
		if r.Method == http.MethodGet {
			h.serveAPIRead(w, r)
			return
		}
		h.serveAPIPassthrough(w, r)
	case strings.HasPrefix(path, h.imagePrefix):
		h.serveImage(w, r)
	default:
		h.serveShellAsset(w, r)
	}
}

func (h *Handler) serveAPIRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case path == "/restaurants":
		h.serveRestaurantCollection(ctx, w)
	case strings.HasPrefix(path, "/restaurants/"):
		rawID := strings.TrimPrefix(path, "/restaurants/")
		restaurantID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			http.Error(w, "invalid restaurant id", http.StatusBadRequest)
			return
		}
		h.serveRestaurant(ctx, w, restaurantID)
	case path == "/reviews":
		rawID := r.URL.Query().Get("restaurant_id")
		restaurantID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || restaurantID <= 0 {
			http.Error(w, "restaurant_id query parameter is required", http.StatusBadRequest)
			return
		}
		h.serveReviews(ctx, w, restaurantID)
	default:
		http.NotFound(w, r)
	}
}

// serveRestaurantCollection serves the cached snapshot row, refilling it
// (with per-entity fan-out) from the origin on a miss.
func (h *Handler) serveRestaurantCollection(ctx context.Context, w http.ResponseWriter) {
	if h.store != nil {
		record, err := h.store.GetRestaurant(ctx, storage.SnapshotID)
		if err == nil {
			writeJSON(w, record.Payload)
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read restaurant snapshot: %v", err)
		}
	}

	restaurants, err := h.api.ListRestaurants(ctx)
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	payload, err := json.Marshal(restaurants)
	if err != nil {
		http.Error(w, "encode restaurants", http.StatusInternalServerError)
		return
	}
	if h.store != nil {
		records := make([]storage.RestaurantRecord, 0, len(restaurants))
		for _, restaurant := range restaurants {
			entity, err := json.Marshal(restaurant)
			if err != nil {
				http.Error(w, "encode restaurant", http.StatusInternalServerError)
				return
			}
			records = append(records, storage.RestaurantRecord{ID: restaurant.ID, Payload: entity})
		}
		if err := h.store.ReplaceRestaurants(ctx, payload, records); err != nil {
			log.Printf("populate restaurant cache: %v", err)
		}
	}
	writeJSON(w, payload)
}

func (h *Handler) serveRestaurant(ctx context.Context, w http.ResponseWriter, restaurantID int64) {
	if h.store != nil {
		record, err := h.store.GetRestaurant(ctx, restaurantID)
		if err == nil {
			writeJSON(w, record.Payload)
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read cached restaurant %d: %v", restaurantID, err)
		}
	}

	restaurant, err := h.api.GetRestaurant(ctx, restaurantID)
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	payload, err := json.Marshal(restaurant)
	if err != nil {
		http.Error(w, "encode restaurant", http.StatusInternalServerError)
		return
	}
	if h.store != nil {
		if err := h.store.PutRestaurant(ctx, storage.RestaurantRecord{ID: restaurantID, Payload: payload}); err != nil {
			log.Printf("populate restaurant cache: %v", err)
		}
	}
	writeJSON(w, payload)
}

// serveReviews serves cached reviews for one restaurant via the secondary
// index, refilling from the origin on a miss.
func (h *Handler) serveReviews(ctx context.Context, w http.ResponseWriter, restaurantID int64) {
	if h.store != nil {
		records, err := h.store.GetReviewsByRestaurant(ctx, restaurantID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read cached reviews: %v", err)
		}
		if len(records) > 0 {
			payloads := make([][]byte, 0, len(records))
			for _, record := range records {
				payloads = append(payloads, record.Payload)
			}
			writeJSON(w, joinJSONArray(payloads))
			return
		}
	}

	reviews, err := h.api.ListReviews(ctx, restaurantID)
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	payload, err := json.Marshal(reviews)
	if err != nil {
		http.Error(w, "encode reviews", http.StatusInternalServerError)
		return
	}
	if h.store != nil {
		records := make([]storage.ReviewRecord, 0, len(reviews))
		for _, review := range reviews {
			entity, err := json.Marshal(review)
			if err != nil {
				http.Error(w, "encode review", http.StatusInternalServerError)
				return
			}
			records = append(records, storage.ReviewRecord{ID: review.ID, RestaurantID: restaurantID, Payload: entity})
		}
		if err := h.store.ReplaceReviews(ctx, restaurantID, records); err != nil {
			log.Printf("populate review cache: %v", err)
		}
	}
	writeJSON(w, payload)
}

// serveAPIPassthrough forwards a non-GET API request to the origin and
// returns the JSON result uncached. Durable queuing for offline writes
// happens in the app layer, not here.
func (h *Handler) serveAPIPassthrough(w http.ResponseWriter, r *http.Request) {
	targetURL := h.apiURL(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "build upstream request", http.StatusInternalServerError)
		return
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := h.passthrough.Do(req)
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("stream passthrough response: %v", err)
	}
}

// serveImage serves the canonical cached image, stripping the resolution
// suffix from the request so every size of one photo hits the same entry.
func (h *Handler) serveImage(w http.ResponseWriter, r *http.Request) {
	requestURL := h.shellOrigin + r.URL.Path
	canonicalURL := imageSuffix.ReplaceAllString(requestURL, "")
	h.serveFromAssets(w, r, canonicalURL, requestURL)
}

func (h *Handler) serveShellAsset(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}
	assetURL := h.shellOrigin + path
	h.serveFromAssets(w, r, assetURL, assetURL)
}

func (h *Handler) serveFromAssets(w http.ResponseWriter, r *http.Request, canonicalURL, fetchURL string) {
	if h.assets == nil {
		http.Redirect(w, r, fetchURL, http.StatusTemporaryRedirect)
		return
	}
	body, contentType, err := h.assets.Get(r.Context(), canonicalURL, fetchURL)
	if err != nil {
		http.Error(w, "asset unavailable offline", http.StatusServiceUnavailable)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := w.Write(body); err != nil {
		log.Printf("write asset response: %v", err)
	}
}

func (h *Handler) apiURL(r *http.Request) string {
	url := strings.TrimSuffix(h.api.RestaurantsURL(), "/restaurants") + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}
	return url
}

func writeJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(payload); err != nil {
		log.Printf("write json response: %v", err)
	}
}

func writeUnavailable(w http.ResponseWriter, err error) {
	log.Printf("origin unavailable: %v", err)
	http.Error(w, "no cached data and origin unreachable", http.StatusServiceUnavailable)
}

func joinJSONArray(payloads [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, payload := range payloads {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(payload)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
