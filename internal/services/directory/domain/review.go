package domain

import "fmt"

// Review is one restaurant review. CreatedAt is a Unix-millisecond
// timestamp, matching the origin API wire format.
type Review struct {
	ID           int64  `json:"id,omitempty"`
	RestaurantID int64  `json:"restaurant_id"`
	Name         string `json:"name"`
	Rating       int    `json:"rating"`
	Comments     string `json:"comments"`
	CreatedAt    int64  `json:"createdAt"`
}

// Validate reports whether the review is acceptable for submission.
func (r Review) Validate() error {
	if r.RestaurantID <= 0 {
		return fmt.Errorf("restaurant id is required")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	if r.Name == "" {
		return fmt.Errorf("reviewer name is required")
	}
	return nil
}
