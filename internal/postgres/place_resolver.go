package postgres

import (
	"context"
	"errors"

	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// PlaceResolver maps a place reference to its ISO country code.
type PlaceResolver struct{}

// NewPlaceResolver constructs a new PlaceResolver.
func NewPlaceResolver() ports.PlaceResolver {
	return &PlaceResolver{}
}

// ResolveCountry returns the country code for a place, or "" when the place
// is unknown or carries no country. Unknown is not an error: the country
// check downstream only fires when both sides are known.
func (res *PlaceResolver) ResolveCountry(ctx context.Context, placeID string) (string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return "", err
	}

	var country string
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(country, '') FROM places WHERE id = $1
	`, placeID).Scan(&country)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return country, nil
}
