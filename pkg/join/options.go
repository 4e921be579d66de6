/*
Copyright 2023 The Ticketfuse Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package join

import (
	"fmt"
	"time"
)

type options struct {
	// window is the maximum allowed event-time gap between a booking
	// and its payment for a valid join, inclusive at both ends.
	window time.Duration
	// grace is the extra buffering time beyond the window tolerated for
	// out-of-order and late arrival before declaring a record unmatched.
	grace time.Duration
	// partitionCount is the number of shards of join state.
	partitionCount int
	// dedupCacheSize bounds the per-partition dedup caches.
	dedupCacheSize int
	// sweepInterval is how often buffered state is checked for expiry.
	sweepInterval time.Duration
	// now is the clock used by the sweeper, replaceable in tests.
	now func() time.Time
}

func defaultOptions() *options {
	return &options{
		window:         2 * time.Minute,
		grace:          30 * time.Second,
		partitionCount: 16,
		dedupCacheSize: 8192,
		sweepInterval:  10 * time.Second,
		now:            time.Now,
	}
}

type Option func(*options) error

// WithWindow sets the join window size
func WithWindow(w time.Duration) Option {
	return func(o *options) error {
		if w <= 0 {
			return fmt.Errorf("window must be positive, got %v", w)
		}
		o.window = w
		return nil
	}
}

// WithGrace sets the grace period for late data
func WithGrace(g time.Duration) Option {
	return func(o *options) error {
		if g < 0 {
			return fmt.Errorf("grace must not be negative, got %v", g)
		}
		o.grace = g
		return nil
	}
}

// WithPartitionCount sets the number of join state partitions
func WithPartitionCount(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("partition count must be positive, got %d", n)
		}
		o.partitionCount = n
		return nil
	}
}

// WithDedupCacheSize sets the size of the per-partition dedup caches
func WithDedupCacheSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("dedup cache size must be positive, got %d", n)
		}
		o.dedupCacheSize = n
		return nil
	}
}

// WithSweepInterval sets how often the expiry sweep runs
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive, got %v", d)
		}
		o.sweepInterval = d
		return nil
	}
}

// WithClock replaces the wall clock used by the expiry sweep,
// used for deterministic tests with simulated time.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.now = now
		return nil
	}
}
