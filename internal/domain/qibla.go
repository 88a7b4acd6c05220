package domain

// Kaaba is the Qibla target.
//
//nolint:gochecknoglobals // Fixed reference coordinate.
var Kaaba = GeoCoordinate{Latitude: 21.4225, Longitude: 39.8262}

// Bearing is a direction in degrees clockwise from true north, in [0, 360).
type Bearing float64

// Degrees returns the bearing as a plain float.
func (b Bearing) Degrees() float64 { return float64(b) }

// BearingBetween returns the initial great-circle bearing from observer to target.
//   θ = atan2(sin Δλ · cos φ2, cos φ1 · sin φ2 − sin φ1 · cos φ2 · cos Δλ)
func BearingBetween(observer, target GeoCoordinate) Bearing {
	lat1 := observer.Latitude
	lat2 := target.Latitude
	dLon := target.Longitude - observer.Longitude

	y := dsin(dLon) * dcos(lat2)
	x := dcos(lat1)*dsin(lat2) - dsin(lat1)*dcos(lat2)*dcos(dLon)
	return Bearing(NormalizeDegrees(darctan2(y, x)))
}

// QiblaBearing returns the bearing from observer to the Kaaba.
func QiblaBearing(observer GeoCoordinate) Bearing {
	return BearingBetween(observer, Kaaba)
}
