package restaurantrepofakes

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/restaurants"
)

var _ restaurants.Repo = (*FakeRestaurantRepo)(nil)

type FakeRestaurantRepo struct {
	restaurants map[string]*restaurants.Restaurant
	lock        sync.RWMutex
}

func NewFakeRestaurantRepo() restaurants.Repo {
	return &FakeRestaurantRepo{
		restaurants: make(map[string]*restaurants.Restaurant),
	}
}

func (rr *FakeRestaurantRepo) Upsert(restaurant *restaurants.Restaurant) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()
	if restaurant.ID == "" {
		restaurant.ID = uuid.New().String()
	}
	stored := *restaurant
	rr.restaurants[restaurant.ID] = &stored
	return nil
}

func (rr *FakeRestaurantRepo) Get(restaurantID string) (*restaurants.Restaurant, error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()
	r, ok := rr.restaurants[restaurantID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	found := *r
	return &found, nil
}
