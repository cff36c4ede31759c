package meter

import (
	"log"

	"github.com/patrickmn/go-cache"
)

// baseline tracks one sensor's cumulative counter between observations.
type baseline struct {
	// Last is the most recent raw cumulative count.
	Last int64
	// Pending is the tick movement since the last emitted pour. Deltas too
	// small to count as a pour accumulate here instead of being dropped.
	Pending int64
}

// Debouncer turns raw cumulative tick counters into discrete pour deltas,
// absorbing electrical noise and recovering from counter resets. State is
// process-local and keyed by meter name; losing it on restart is acceptable.
type Debouncer struct {
	baselines *cache.Cache
	minTicks  int64
	maxDelta  int64
}

// NewDebouncer creates a debouncer. minTicks is the smallest accumulated
// delta worth a pour; maxDelta is the implausible-burst ceiling.
func NewDebouncer(minTicks, maxDelta int64) *Debouncer {
	return &Debouncer{
		baselines: cache.New(cache.NoExpiration, cache.NoExpiration),
		minTicks:  minTicks,
		maxDelta:  maxDelta,
	}
}

// Observe records a cumulative tick reading for the named meter. It returns
// the tick delta to pour and true when enough movement has accumulated. The
// first observation for a meter only establishes the baseline.
func (d *Debouncer) Observe(meterName string, cumulative int64) (int64, bool) {
	var b baseline
	if v, found := d.baselines.Get(meterName); found {
		b = v.(baseline)
	} else {
		d.baselines.Set(meterName, baseline{Last: cumulative}, cache.NoExpiration)
		return 0, false
	}

	delta := cumulative - b.Last
	if delta < 0 || delta > d.maxDelta {
		// Counter reset or implausible burst: re-baseline without pouring.
		log.Printf("meter %s: anomalous tick delta %d (last %d, now %d); resetting baseline",
			meterName, delta, b.Last, cumulative)
		d.baselines.Set(meterName, baseline{Last: cumulative}, cache.NoExpiration)
		return 0, false
	}

	b.Last = cumulative
	b.Pending += delta
	if b.Pending < d.minTicks {
		d.baselines.Set(meterName, b, cache.NoExpiration)
		return 0, false
	}

	ticks := b.Pending
	b.Pending = 0
	d.baselines.Set(meterName, b, cache.NoExpiration)
	return ticks, true
}
