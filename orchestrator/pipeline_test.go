package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_OrderedResults(t *testing.T) {
	t.Run("should process all inputs and return ordered results", func(t *testing.T) {
		inputs := []int{1, 2, 3, 4, 5}

		results := Map(context.Background(), 3, inputs, func(_ context.Context, in int) (int, error) {
			return in * 2, nil
		})

		require.Len(t, results, 5)
		for i, r := range results {
			assert.NoError(t, r.Err)
			assert.Equal(t, inputs[i]*2, r.Value)
		}
	})
}

func TestMap_EmptyInput(t *testing.T) {
	t.Run("should return nil for empty input", func(t *testing.T) {
		results := Map(context.Background(), 3, nil, func(_ context.Context, in int) (int, error) {
			return in, nil
		})

		assert.Nil(t, results)
	})
}

func TestMap_ErrorHandling(t *testing.T) {
	t.Run("should capture errors per item without stopping others", func(t *testing.T) {
		errBoom := errors.New("boom")
		inputs := []int{1, 2, 3}

		results := Map(context.Background(), 3, inputs, func(_ context.Context, in int) (int, error) {
			if in == 2 {
				return 0, errBoom
			}
			return in * 10, nil
		})

		require.Len(t, results, 3)
		assert.NoError(t, results[0].Err)
		assert.Equal(t, 10, results[0].Value)
		assert.ErrorIs(t, results[1].Err, errBoom)
		assert.NoError(t, results[2].Err)
		assert.Equal(t, 30, results[2].Value)
	})
}

func TestMap_BoundsConcurrency(t *testing.T) {
	t.Run("should limit concurrent workers to the configured value", func(t *testing.T) {
		var maxConcurrent atomic.Int32
		var current atomic.Int32

		inputs := make([]int, 20)
		for i := range inputs {
			inputs[i] = i
		}

		_ = Map(context.Background(), 3, inputs, func(_ context.Context, in int) (int, error) {
			c := current.Add(1)
			for {
				old := maxConcurrent.Load()
				if c <= old || maxConcurrent.CompareAndSwap(old, c) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return in, nil
		})

		assert.LessOrEqual(t, maxConcurrent.Load(), int32(3),
			"max concurrent workers should not exceed the configured bound")
		assert.Greater(t, maxConcurrent.Load(), int32(1),
			"should actually use concurrent workers")
	})
}

func TestMap_ContextCancellation(t *testing.T) {
	t.Run("should mark remaining items with the context error", func(t *testing.T) {
		var processed atomic.Int32

		inputs := make([]int, 10)
		for i := range inputs {
			inputs[i] = i
		}

		ctx, cancel := context.WithCancel(context.Background())

		results := Map(ctx, 2, inputs, func(ctx context.Context, in int) (int, error) {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			processed.Add(1)
			if in == 1 {
				cancel()
				time.Sleep(20 * time.Millisecond)
			}
			time.Sleep(10 * time.Millisecond)
			return in, nil
		})

		require.Len(t, results, 10)

		p := processed.Load()
		assert.Less(t, p, int32(10), "not all items should be processed after cancellation, got %d", p)
	})
}

func TestMap_WorkersExceedInputs(t *testing.T) {
	t.Run("should handle worker count greater than input size", func(t *testing.T) {
		inputs := []string{"a", "b"}

		results := Map(context.Background(), 100, inputs, func(_ context.Context, in string) (string, error) {
			return in + "!", nil
		})

		require.Len(t, results, 2)
		assert.Equal(t, "a!", results[0].Value)
		assert.Equal(t, "b!", results[1].Value)
	})
}
