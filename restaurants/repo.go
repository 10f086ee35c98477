package restaurants

// Repo stores restaurants; a missing restaurant is errors.ErrNotFound
type Repo interface {
	Upsert(restaurant *Restaurant) error
	Get(restaurantID string) (*Restaurant, error)
}
