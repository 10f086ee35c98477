package restaurants

import "time"

// Restaurant is the primary business entity a user works in.
// The session manager only ever needs its ID; the rest is carried for the API.
type Restaurant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Simulated bool      `json:"simulated,omitempty"` // Demo restaurant created for onboarding walkthroughs
	CreatedAt time.Time `json:"created_at"`
}
