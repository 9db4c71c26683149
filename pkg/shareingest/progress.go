// shareimport - An attachment import pipeline for end-to-end encrypted messengers.
// Copyright (C) 2026 shareimport contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package shareingest

import (
	"context"
	"sync/atomic"
	"time"
)

// SampleInterval is how often the aggregator samples its sources.
const SampleInterval = 100 * time.Millisecond

// Source exposes the completion fraction of one load or convert step as a
// discrete 0-100 value.
type Source interface {
	Percent() int
}

// Fixed is a placeholder Source for steps that cannot report live progress.
// Aggregation uses it instead of blocking the composite value.
type Fixed int

func (f Fixed) Percent() int {
	return int(f)
}

// Tracker is a mutable Source owned by a single pipeline step. Writes clamp
// to 0-100 and never move backwards, so late provider callbacks cannot make
// the UI regress.
type Tracker struct {
	percent atomic.Int32
}

func (t *Tracker) Percent() int {
	return int(t.percent.Load())
}

func (t *Tracker) set(value int) {
	if value > 100 {
		value = 100
	} else if value < 0 {
		value = 0
	}
	for {
		old := t.percent.Load()
		if int32(value) <= old || t.percent.CompareAndSwap(old, int32(value)) {
			return
		}
	}
}

// finish marks the step complete regardless of prior value.
func (t *Tracker) finish() {
	t.percent.Store(100)
}

// Aggregator combines independent per-step progress sources into a single
// composite fraction by arithmetic mean. It is a passive read-only value:
// cancelling the aggregate cancels nothing by itself, the caller must drive
// cancellation through the underlying operations.
type Aggregator struct {
	sources  []Source
	onChange func(percent int)
}

// NewAggregator creates an aggregator over the given sources. Nil sources
// are treated as already complete so they don't hold the mean below 100.
// The slice is copied, so the caller's slice is never modified. onChange
// may be nil.
func NewAggregator(sources []Source, onChange func(percent int)) *Aggregator {
	owned := make([]Source, len(sources))
	for i, src := range sources {
		if src == nil {
			src = Fixed(100)
		}
		owned[i] = src
	}
	return &Aggregator{sources: owned, onChange: onChange}
}

// Percent returns the current arithmetic mean of all sources.
func (agg *Aggregator) Percent() int {
	if len(agg.sources) == 0 {
		return 100
	}
	var total int
	for _, src := range agg.sources {
		total += src.Percent()
	}
	return total / len(agg.sources)
}

// Run samples the sources at SampleInterval, invoking onChange whenever the
// composite value moves, until it reaches 100 or the context is cancelled.
func (agg *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()
	last := -1
	for {
		current := agg.Percent()
		if current != last {
			last = current
			if agg.onChange != nil {
				agg.onChange(current)
			}
		}
		if current >= 100 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
