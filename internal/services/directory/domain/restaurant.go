// Package domain holds restaurant-directory entities and the pure
// projections the view layer filters with.
package domain

// FilterAll is the wildcard value that disables a cuisine or neighborhood
// filter.
const FilterAll = "all"

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Restaurant is one directory entry, using the origin API field names.
type Restaurant struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Neighborhood   string            `json:"neighborhood"`
	CuisineType    string            `json:"cuisine_type"`
	Address        string            `json:"address"`
	LatLng         LatLng            `json:"latlng"`
	Photograph     string            `json:"photograph"`
	OperatingHours map[string]string `json:"operating_hours,omitempty"`
	IsFavorite     bool              `json:"is_favorite"`
	Reviews        []Review          `json:"reviews,omitempty"`
}

// FilterByCuisineAndNeighborhood returns the restaurants matching both
// filters. The FilterAll wildcard disables the corresponding filter.
// Input order is preserved.
func FilterByCuisineAndNeighborhood(restaurants []Restaurant, cuisine, neighborhood string) []Restaurant {
	results := make([]Restaurant, 0, len(restaurants))
	for _, r := range restaurants {
		if cuisine != FilterAll && r.CuisineType != cuisine {
			continue
		}
		if neighborhood != FilterAll && r.Neighborhood != neighborhood {
			continue
		}
		results = append(results, r)
	}
	return results
}

// Neighborhoods returns the distinct neighborhoods in first-occurrence order.
func Neighborhoods(restaurants []Restaurant) []string {
	return distinct(restaurants, func(r Restaurant) string { return r.Neighborhood })
}

// Cuisines returns the distinct cuisine types in first-occurrence order.
func Cuisines(restaurants []Restaurant) []string {
	return distinct(restaurants, func(r Restaurant) string { return r.CuisineType })
}

func distinct(restaurants []Restaurant, key func(Restaurant) string) []string {
	seen := make(map[string]bool, len(restaurants))
	values := make([]string, 0, len(restaurants))
	for _, r := range restaurants {
		value := key(r)
		if seen[value] {
			continue
		}
		seen[value] = true
		values = append(values, value)
	}
	return values
}
