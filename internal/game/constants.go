package game

import "time"

// World bounds (world units). The arena is the square [-WorldExtent, WorldExtent]².
const (
	WorldExtent = 10.0
)

// Movement
const (
	// SpeedRampDistance is the target distance at which movement speed saturates.
	SpeedRampDistance = 1.0
	MaxSpeed          = 1.0 // world units per second
	PositionDecimals  = 5
)

// Collision
const (
	PlayerRadiusPerScale = 0.1
	PickupRadius         = 0.05
	AbsorbRatio          = 0.85
)

// Progression
const (
	MinScale       = 1.0
	MaxScale       = 8.0
	WapOffset      = 8.75 // WAP centres sit at (±WapOffset, ±WapOffset)
	WapHalfWidth   = 2.5
	UnitsPerTier   = 10
	FirstIncrement = 0.05
	MinIncrement   = 0.01
)

// Game timing
const (
	TickRate    = 20 // ticks per second
	PickupBatch = 5  // pickups spawned per session per tick
)

// Pickup ids are drawn from [0, MaxPickupID].
const MaxPickupID = 2147483647

// TickInterval returns the wall-clock length of one tick at the given rate.
func TickInterval(tickRate int) time.Duration {
	return time.Second / time.Duration(tickRate)
}

// TickSeconds returns the length of one tick in seconds.
func TickSeconds(tickRate int) float64 {
	return 1 / float64(tickRate)
}
