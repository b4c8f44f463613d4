package game

import "math/rand"

// RandomPickup creates a pickup with a random id at a uniformly random
// position inside the arena.
func RandomPickup(rng *rand.Rand) Pickup {
	return Pickup{
		ID: rng.Int63n(MaxPickupID + 1),
		X:  randomCoord(rng),
		Y:  randomCoord(rng),
	}
}

func randomCoord(rng *rand.Rand) float64 {
	return -WorldExtent + rng.Float64()*(2*WorldExtent)
}
