package game

// Player is the replicated state of one connected player. A player record has
// a single writer: the session that owns the connection.
type Player struct {
	UserID        int64   `json:"user_id"`
	Username      string  `json:"username"`
	Tick          int64   `json:"tick"`
	TickRTT       float64 `json:"tick_rtt"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Scale         float64 `json:"scale"`
	Untransmitted float64 `json:"untransmitted"`
	Transmitted   float64 `json:"transmitted"`
}

// NewPlayer creates a player at the arena centre with the minimum scale.
func NewPlayer(userID int64, username string) Player {
	return Player{
		UserID:   userID,
		Username: username,
		Scale:    MinScale,
	}
}

// Position returns the player's position as a vector.
func (p *Player) Position() Vector2 {
	return Vector2{X: p.X, Y: p.Y}
}

// SetPosition stores a new position.
func (p *Player) SetPosition(v Vector2) {
	p.X = v.X
	p.Y = v.Y
}

// PickupRadiusCircle is the circle used to collect pickups.
func (p *Player) PickupRadiusCircle() Circle {
	return Circle{Position: p.Position(), Radius: PlayerRadiusPerScale * p.Scale}
}

// BodyCircle is the circle used for player-vs-player overlap.
func (p *Player) BodyCircle() Circle {
	return Circle{Position: p.Position(), Radius: p.Scale}
}

// Pickup is a collectible data bit.
type Pickup struct {
	ID int64   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Circle returns the pickup's collision circle.
func (p Pickup) Circle() Circle {
	return Circle{Position: Vector2{X: p.X, Y: p.Y}, Radius: PickupRadius}
}

// Snapshot is the delta sent to a client once per outbound tick.
type Snapshot struct {
	LocalPlayerID  int64    `json:"local_player_id"`
	ServerTick     int64    `json:"server_tick"`
	TickRate       int      `json:"tick_rate"`
	PlayerDeltas   []Player `json:"player_deltas"`
	SpawnPickups   []Pickup `json:"spawn_pickups"`
	DespawnPlayers []int64  `json:"despawn_players"`
	DespawnPickups []int64  `json:"despawn_pickups"`
	AtWap          bool     `json:"at_wap"`
}
