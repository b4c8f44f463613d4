package match

import (
	"sync"

	"github.com/ugaemi/netraiders-server/internal/game"
)

// ActiveSet is the session's local view of pickups that are still in play.
type ActiveSet struct {
	mu      sync.Mutex
	pickups []game.Pickup
}

// Add appends a pickup.
func (a *ActiveSet) Add(p game.Pickup) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pickups = append(a.pickups, p)
}

// Remove drops the first pickup with the given id and reports whether one was found.
func (a *ActiveSet) Remove(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, p := range a.pickups {
		if p.ID == id {
			a.pickups = append(a.pickups[:i], a.pickups[i+1:]...)
			return true
		}
	}
	return false
}

// Pickups returns a copy of the active pickups.
func (a *ActiveSet) Pickups() []game.Pickup {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]game.Pickup(nil), a.pickups...)
}

// Len returns the number of active pickups.
func (a *ActiveSet) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pickups)
}
