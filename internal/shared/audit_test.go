package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOccurredAtDefaultsToNow(t *testing.T) {
	before := time.Now().UTC()
	got := AuditLog{}.OccurredAt()
	after := time.Now().UTC()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}

func TestOccurredAtKeepsExplicitTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	require.Equal(t, at, AuditLog{At: at}.OccurredAt())
}
