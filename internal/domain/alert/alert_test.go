package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlertValidation(t *testing.T) {
	_, err := New("  ", "trip-1", time.Now())
	assert.ErrorIs(t, err, ErrDriverRequired)

	_, err = New("d1", "", time.Now())
	assert.ErrorIs(t, err, ErrTripRequired)

	a, err := New("d1", "trip-1", time.Now().Add(DefaultTTL))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
}

func TestOpenWindowBoundary(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	a := &Alert{Status: StatusPending, ExpiresAt: now.Add(time.Minute)}

	assert.True(t, a.Open(now))
	// the boundary is closed: expiring exactly now means expired
	assert.False(t, a.Open(now.Add(time.Minute)))
	assert.True(t, a.Expired(now.Add(time.Minute)))

	a.Status = StatusRejected
	assert.False(t, a.Open(now), "only PENDING alerts are open")
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	for _, s := range []Status{StatusAccepted, StatusRejected, StatusExpired, StatusCancelled} {
		assert.True(t, s.Terminal(), "%s", s)
	}
}
