package locations

import (
	"context"
	"fmt"

	"trip-dispatch/internal/geo"
	"trip-dispatch/internal/ports"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "drivers:geo"

// RedisIndex stores last-known driver positions in a Redis GEO set.
type RedisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex connects to Redis and returns the index.
func NewRedisIndex(addr, password string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: defaultKey}
}

// Ping verifies the connection at startup.
func (r *RedisIndex) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}

// Update records the driver's last-known position.
func (r *RedisIndex) Update(ctx context.Context, driverID string, lat, lon float64) error {
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      driverID,
		Latitude:  lat,
		Longitude: lon,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", driverID, err)
	}
	return nil
}

// Distances returns meters from each known driver to the given point.
// Drivers with no recorded position are absent from the result.
func (r *RedisIndex) Distances(ctx context.Context, driverIDs []string, lat, lon float64) (map[string]float64, error) {
	if len(driverIDs) == 0 {
		return map[string]float64{}, nil
	}

	positions, err := r.client.GeoPos(ctx, r.key, driverIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("geopos: %w", err)
	}

	out := make(map[string]float64, len(driverIDs))
	for i, pos := range positions {
		if pos == nil {
			continue
		}
		out[driverIDs[i]] = geo.DistanceMeters(lat, lon, pos.Latitude, pos.Longitude)
	}
	return out, nil
}

var _ ports.LocationIndex = (*RedisIndex)(nil)
