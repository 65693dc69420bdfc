package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roshanis/shopagent/internal/evaluation"
)

var _ evaluation.Clock = (*Clock)(nil)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "expected %v within [%v, %v]", got, before, after)
}

func TestClockNowMonotonic(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	second := clk.Now()
	require.False(t, second.Before(first))
}
