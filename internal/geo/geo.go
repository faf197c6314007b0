// Package geo is a pure function library: great-circle distances, proximity
// checks, and the PIN/QR start-verification tokens. No storage, no clocks
// beyond what the token issuer injects.
package geo

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
)

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance in meters.
func DistanceMeters(latA, lonA, latB, lonB float64) float64 {
	dLat := (latB - latA) * math.Pi / 180
	dLon := (lonB - lonA) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA*math.Pi/180)*math.Cos(latB*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// IsNear reports whether two points are within toleranceMeters of each other.
func IsNear(driverLat, driverLon, targetLat, targetLon, toleranceMeters float64) bool {
	return DistanceMeters(driverLat, driverLon, targetLat, targetLon) <= toleranceMeters
}

// GeneratePin returns a 4-digit numeric string. It is a low-stakes shared
// secret read aloud between passenger and driver, not a cryptographic
// credential; crypto/rand is used only to avoid seeding concerns.
func GeneratePin() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// rand.Reader failing means the process is in much deeper trouble;
		// fall back to a constant rather than panic in a pure library.
		return "0000"
	}
	return fmt.Sprintf("%04d", n.Int64())
}
