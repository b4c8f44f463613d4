package game

import "math"

// wapCenters are the four wireless access points, one per corner.
var wapCenters = [4]Vector2{
	{X: -WapOffset, Y: -WapOffset},
	{X: WapOffset, Y: -WapOffset},
	{X: -WapOffset, Y: WapOffset},
	{X: WapOffset, Y: WapOffset},
}

// WapCenters returns the WAP centres in detection order.
func WapCenters() []Vector2 {
	return wapCenters[:]
}

// WapAlpha reports how strongly a position is connected to a WAP: 1 at a
// centre, falling linearly with distance, 0 outside every detection window.
// Only the first matching window is considered. The window is square, so its
// corners lie further than WapHalfWidth from the centre; alpha is floored at 0
// there so transmission never runs backwards.
func WapAlpha(pos Vector2) float64 {
	for _, c := range wapCenters {
		if math.Abs(pos.X-c.X) <= WapHalfWidth && math.Abs(pos.Y-c.Y) <= WapHalfWidth {
			return math.Max(0, 1-Distance(pos, c)/WapHalfWidth)
		}
	}
	return 0
}

// Transmit moves untransmitted data into transmitted at the given WAP alpha
// for one tick and returns the amount moved.
func Transmit(p *Player, alpha, tickSeconds float64) float64 {
	amount := p.Untransmitted * alpha * tickSeconds
	p.Untransmitted -= amount
	if p.Untransmitted < 0 {
		p.Untransmitted = 0
	}
	p.Transmitted += amount
	return amount
}

// ScaleFor returns the scale for an amount of untransmitted data. Each whole
// unit adds the current increment; the increment steps down after every
// UnitsPerTier units (0.05, 0.025, 0.015, then 0.01 onwards). The result is
// capped at MaxScale.
func ScaleFor(untransmitted float64) float64 {
	units := int(untransmitted)
	increment := FirstIncrement
	total := 0.0
	for i := 1; i <= units; i++ {
		total += increment
		if i%UnitsPerTier == 0 {
			increment = nextIncrement(increment)
		}
		if MinScale+total >= MaxScale {
			return MaxScale
		}
	}
	return MinScale + total
}

func nextIncrement(inc float64) float64 {
	switch {
	case inc > FirstIncrement:
		inc -= 0.005
	case inc > 0.025:
		inc -= 0.025
	case inc > MinIncrement:
		inc -= 0.01
	}
	return math.Max(inc, MinIncrement)
}
