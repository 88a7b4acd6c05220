package domain

import "math"

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	r := math.Mod(deg, 360.0)
	if r < 0 {
		r += 360.0
	}
	// math.Mod(-1e-15, 360) + 360 rounds to 360.
	if r >= 360.0 {
		r = 0
	}
	return r
}

// SignedDelta returns the shortest signed rotation from -> to in degrees,
// in the range (-180, 180].
func SignedDelta(from, to float64) float64 {
	d := NormalizeDegrees(to - from)
	if d > 180.0 {
		d -= 360.0
	}
	return d
}

// CircularDifference returns the absolute angular distance between a and b
// in [0, 180].
func CircularDifference(a, b float64) float64 {
	return math.Abs(SignedDelta(a, b))
}

// IsAligned reports whether heading points at bearing within tolerance degrees.
func IsAligned(heading, bearing, tolerance float64) bool {
	if tolerance < 0 {
		return false
	}
	return CircularDifference(heading, bearing) <= tolerance
}

func dsin(deg float64) float64 { return math.Sin(Deg2Rad(deg)) }
func dcos(deg float64) float64 { return math.Cos(Deg2Rad(deg)) }
func dtan(deg float64) float64 { return math.Tan(Deg2Rad(deg)) }

func darcsin(x float64) float64 { return Rad2Deg(math.Asin(x)) }
func darccos(x float64) float64 { return Rad2Deg(math.Acos(x)) }

func darctan2(y, x float64) float64 { return Rad2Deg(math.Atan2(y, x)) }

// darccot returns arccot(x) in degrees.
func darccot(x float64) float64 { return Rad2Deg(math.Atan(1 / x)) }
