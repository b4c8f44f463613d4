package game

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Vector2 is a point or direction on the arena plane.
type Vector2 = r2.Vec

// Circle is used only for collision tests.
type Circle struct {
	Position Vector2
	Radius   float64
}

// Distance calculates the Euclidean distance between two points.
func Distance(a, b Vector2) float64 {
	return r2.Norm(r2.Sub(b, a))
}

// MoveTowards moves current towards target by at most maxDelta.
// The target itself is returned when it is within reach or already reached.
func MoveTowards(current, target Vector2, maxDelta float64) Vector2 {
	direction := r2.Sub(target, current)
	magnitude := r2.Norm(direction)
	if magnitude <= maxDelta || magnitude == 0 {
		return target
	}
	return r2.Add(current, r2.Scale(maxDelta/magnitude, direction))
}

// ClampToWorld clamps a position within the arena bounds.
func ClampToWorld(v Vector2) Vector2 {
	return Vector2{X: clamp(v.X, -WorldExtent, WorldExtent), Y: clamp(v.Y, -WorldExtent, WorldExtent)}
}

// Round5 rounds each component to PositionDecimals decimal digits.
func Round5(v Vector2) Vector2 {
	p := math.Pow(10, PositionDecimals)
	return Vector2{X: math.Round(v.X*p) / p, Y: math.Round(v.Y*p) / p}
}

// Collides reports whether two circles overlap. Touching counts as colliding.
func Collides(a, b Circle) bool {
	return r2.Norm2(r2.Sub(a.Position, b.Position)) <= (a.Radius+b.Radius)*(a.Radius+b.Radius)
}

// FullyOverlaps reports whether the smaller circle lies entirely inside the
// larger one and its radius is at most AbsorbRatio of the larger radius.
func FullyOverlaps(a, b Circle) bool {
	larger, smaller := b, a
	if a.Radius > b.Radius {
		larger, smaller = a, b
	}
	d := Distance(larger.Position, smaller.Position)
	return d+smaller.Radius <= larger.Radius && smaller.Radius <= AbsorbRatio*larger.Radius
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
