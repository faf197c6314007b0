package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMetersZero(t *testing.T) {
	assert.Zero(t, DistanceMeters(51.0890, 71.4180, 51.0890, 71.4180))
}

func TestDistanceMetersKnownValues(t *testing.T) {
	// one degree of longitude at the equator is ~111.19 km
	d := DistanceMeters(0, 0, 0, 1)
	assert.InDelta(t, 111195, d, 200)

	// symmetric in its arguments
	assert.InDelta(t, d, DistanceMeters(0, 1, 0, 0), 0.001)

	// Astana center to the airport, roughly 7.6 km
	d = DistanceMeters(51.0890, 71.4180, 51.0275, 71.4669)
	assert.InDelta(t, 7600, d, 400)
}

func TestIsNear(t *testing.T) {
	// ~55m of latitude
	assert.True(t, IsNear(40.7580, -73.9855, 40.7585, -73.9855, 100))
	// ~555m of latitude
	assert.False(t, IsNear(40.7580, -73.9855, 40.7630, -73.9855, 100))
}

func TestGeneratePinFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		pin := GeneratePin()
		assert.Len(t, pin, 4)
		for _, c := range pin {
			assert.True(t, c >= '0' && c <= '9', "pin %q contains non-digit", pin)
		}
	}
}
