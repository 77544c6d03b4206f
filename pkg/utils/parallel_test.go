package utils

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParallelMap(t *testing.T) {
	// 测试空输入
	t.Run("empty input", func(t *testing.T) {
		var emptyInput []int
		result := ParallelMap(emptyInput, 4, func(i int) int { return i * 2 })
		assert.Empty(t, result)
	})

	// 测试单元素输入
	t.Run("single input", func(t *testing.T) {
		result := ParallelMap([]int{42}, 4, func(i int) int { return i * 2 })
		assert.Equal(t, []int{84}, result)
	})

	// 测试多元素输入 - 确保顺序正确
	t.Run("multiple inputs with order", func(t *testing.T) {
		input := []int{1, 2, 3, 4, 5}
		result := ParallelMap(input, 3, func(i int) int {
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			return i * 2
		})
		assert.Equal(t, []int{2, 4, 6, 8, 10}, result)
	})

	// 测试并发上限
	t.Run("concurrency bounded by workers", func(t *testing.T) {
		input := make([]int, 100)
		for i := range input {
			input[i] = i
		}

		var maxConcurrent, current int32
		ParallelMap(input, 10, func(i int) int {
			c := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if c <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, c) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&current, -1)
			return i
		})
		assert.LessOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(10))
		assert.Greater(t, atomic.LoadInt32(&maxConcurrent), int32(0))
	})
}

func TestPartitionHashBytesParallel(t *testing.T) {
	b := make([]byte, 64)
	for i := range b {
		b[i] = byte(i * 7)
	}
	assert.Equal(t, uint32(0), PartitionHashBytes(b[:10], 8), "too short")
	assert.Equal(t, uint32(0), PartitionHashBytes(b, 1))
	assert.Equal(t, uint32(b[27])&7, PartitionHashBytes(b, 8))
	assert.Less(t, PartitionHashBytes(b, 12), uint32(12))
	assert.Equal(t, PartitionHashBytes(b, 12), PartitionHashBytes(b, 12))
}
