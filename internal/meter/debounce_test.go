package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_AccumulatesSmallDeltas(t *testing.T) {
	d := NewDebouncer(10, 10000)

	// First observation only establishes the baseline.
	ticks, emit := d.Observe("kegboard.flow0", 1000)
	assert.False(t, emit)
	assert.Equal(t, int64(0), ticks)

	// Delta 5 is below the 10-tick minimum: no pour.
	ticks, emit = d.Observe("kegboard.flow0", 1005)
	assert.False(t, emit)

	// Delta 7 brings the pending movement to 12: one pour of 12 ticks,
	// not 7. The earlier partial movement is not dropped.
	ticks, emit = d.Observe("kegboard.flow0", 1012)
	assert.True(t, emit)
	assert.Equal(t, int64(12), ticks)

	// Pending was flushed; another small delta accumulates again.
	_, emit = d.Observe("kegboard.flow0", 1015)
	assert.False(t, emit)
}

func TestDebouncer_CounterReset(t *testing.T) {
	d := NewDebouncer(10, 10000)

	d.Observe("kegboard.flow0", 5000)
	_, emit := d.Observe("kegboard.flow0", 5100)
	assert.True(t, emit)

	// Counter reset: negative delta re-baselines without pouring.
	ticks, emit := d.Observe("kegboard.flow0", 3)
	assert.False(t, emit)
	assert.Equal(t, int64(0), ticks)

	// Movement from the new baseline pours normally.
	ticks, emit = d.Observe("kegboard.flow0", 33)
	assert.True(t, emit)
	assert.Equal(t, int64(30), ticks)
}

func TestDebouncer_ImplausibleBurst(t *testing.T) {
	d := NewDebouncer(10, 10000)

	d.Observe("kegboard.flow0", 100)

	// A jump past the ceiling is an anomaly, not a giant pour.
	_, emit := d.Observe("kegboard.flow0", 500000)
	assert.False(t, emit)

	// The baseline moved to the anomalous reading.
	ticks, emit := d.Observe("kegboard.flow0", 500025)
	assert.True(t, emit)
	assert.Equal(t, int64(25), ticks)
}

func TestDebouncer_IndependentMeters(t *testing.T) {
	d := NewDebouncer(10, 10000)

	d.Observe("board-a.flow0", 100)
	d.Observe("board-b.flow0", 9000)

	ticksA, emitA := d.Observe("board-a.flow0", 150)
	ticksB, emitB := d.Observe("board-b.flow0", 9020)

	assert.True(t, emitA)
	assert.Equal(t, int64(50), ticksA)
	assert.True(t, emitB)
	assert.Equal(t, int64(20), ticksB)
}
