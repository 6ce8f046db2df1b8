package branch

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres between two points
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Nearest sorts branches by distance from (lat, lng) and returns at most limit of them
func Nearest(branches []Branch, lat, lng float64, limit int) []WithDistance {
	out := make([]WithDistance, 0, len(branches))
	for _, b := range branches {
		d := Haversine(lat, lng, b.Latitude, b.Longitude)
		out = append(out, WithDistance{Branch: b, DistanceKm: math.Round(d*100) / 100})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
