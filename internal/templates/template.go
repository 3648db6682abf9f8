package templates

import (
	"encoding/json"
	"time"
)

// Template stores a reusable item tree as an opaque blob. The shape
// matches a workout payload's items but is never validated against
// the catalog until it is loaded back into a workout write.
type Template struct {
	ID        int             `json:"id"`
	UserID    int             `json:"userId"`
	Name      string          `json:"name"`
	Notes     *string         `json:"notes,omitempty"`
	Items     json.RawMessage `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
