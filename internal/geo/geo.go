// Spherical-earth helpers shared by telemetry, planning and the renderers.
package geo

import "math"

// EarthRadiusM is the mean earth radius used by every formula in this package.
const EarthRadiusM = 6371000.0

// metersPerDegree is the length of one degree of latitude on the sphere.
const metersPerDegree = EarthRadiusM * math.Pi / 180

// LatLng is a geographic coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a slightly outside [0,1] for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// Distance is HaversineDistance for LatLng values.
func Distance(a, b LatLng) float64 {
	return HaversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Bearing returns the initial bearing from point 1 to point 2 in [0,360),
// measured clockwise from north.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dLon := radians(lon2 - lon1)
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return NormalizeHeading(degrees(math.Atan2(y, x)))
}

// DestinationPoint projects from (lat, lon) along bearingDeg for distanceM.
func DestinationPoint(lat, lon, bearingDeg, distanceM float64) LatLng {
	delta := distanceM / EarthRadiusM
	theta := radians(bearingDeg)
	phi1 := radians(lat)
	lambda1 := radians(lon)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	sinPhi2 = math.Min(1, math.Max(-1, sinPhi2))
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	lng := math.Mod(degrees(lambda2)+540, 360) - 180
	return LatLng{Lat: degrees(phi2), Lng: lng}
}

// NormalizeHeading reduces h to [0,360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// HeadingDifference returns the minimum difference between two headings,
// always in [0,180].
func HeadingDifference(a, b float64) float64 {
	d := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
