package cli

import (
	"fmt"
	"trip-dispatch/internal/geo"
)

// GenerateStartQR mints a signed start token (the QR payload) for a trip
// and its PIN. Handy for exercising the start endpoint against a local stack
// without walking through a full accept flow.
//
// Keep this package dev/internal only. Do not call it from production code paths.
func GenerateStartQR(secret, tripID, pin string) (string, error) {
	issuer, err := geo.NewTokenIssuer(secret)
	if err != nil {
		return "", fmt.Errorf("token issuer: %w", err)
	}

	token, err := issuer.GenerateStartToken(tripID, pin)
	if err != nil {
		return "", fmt.Errorf("generate start token: %w", err)
	}

	return token, nil
}
