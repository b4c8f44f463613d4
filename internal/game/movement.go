package game

// Step computes the authoritative position after one tick of movement from
// current towards target. Speed ramps linearly with distance and saturates
// at SpeedRampDistance. The result is clamped to the arena and rounded.
func Step(current, target Vector2, tickSeconds float64) Vector2 {
	distance := Distance(current, target)
	if distance == 0 {
		return Round5(ClampToWorld(current))
	}
	speed := clamp(distance/SpeedRampDistance, 0, 1) * MaxSpeed
	next := MoveTowards(current, target, speed*tickSeconds)
	return Round5(ClampToWorld(next))
}

// ConsumedPickups returns the pickups that overlap the player's collection circle.
func ConsumedPickups(player Player, active []Pickup) []Pickup {
	body := player.PickupRadiusCircle()
	var consumed []Pickup
	for _, p := range active {
		if Collides(body, p.Circle()) {
			consumed = append(consumed, p)
		}
	}
	return consumed
}

// AbsorbedPlayers returns the other players whose body lies fully inside the
// local player's body. Detection only; callers decide what absorption does.
func AbsorbedPlayers(player Player, others []Player) []Player {
	body := player.BodyCircle()
	var absorbed []Player
	for _, o := range others {
		if o.UserID == player.UserID {
			continue
		}
		oc := o.BodyCircle()
		if oc.Radius <= AbsorbRatio*body.Radius && FullyOverlaps(body, oc) {
			absorbed = append(absorbed, o)
		}
	}
	return absorbed
}
