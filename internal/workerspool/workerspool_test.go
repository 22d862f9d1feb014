// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	t.Run("Limit", func(t *testing.T) {
		pool := New().SetMaxParallelism(3)
		var running, maxRunning, done atomic.Int32
		for range 20 {
			pool.WaitToStart(func() {
				n := running.Add(1)
				for {
					current := maxRunning.Load()
					if n <= current || maxRunning.CompareAndSwap(current, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				done.Add(1)
			})
		}
		pool.Wait()
		assert.Equal(t, int32(20), done.Load())
		assert.LessOrEqual(t, maxRunning.Load(), int32(3))
		assert.Equal(t, int32(0), running.Load())
	})

	t.Run("Inline", func(t *testing.T) {
		pool := New().SetMaxParallelism(0)
		var count int
		pool.WaitToStart(func() { count++ })
		assert.Equal(t, 1, count, "task must have run inline")
		pool.Wait()
	})

	t.Run("Unlimited", func(t *testing.T) {
		pool := New().SetMaxParallelism(-1)
		assert.Equal(t, -1, pool.MaxParallelism())
		var count atomic.Int32
		for range 10 {
			pool.WaitToStart(func() { count.Add(1) })
		}
		pool.Wait()
		assert.Equal(t, int32(10), count.Load())
	})
}
