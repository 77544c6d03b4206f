package utils

import "sync"

// ParallelMap 以最多 workers 个 goroutine 并发执行 fn，结果与输入顺序一一对应。
// workers <= 1 或输入只有一个元素时退化为顺序执行。
func ParallelMap[T any, R any](items []T, workers int, fn func(T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if workers <= 1 || len(items) == 1 {
		for i, item := range items {
			results[i] = fn(item)
		}
		return results
	}
	if workers > len(items) {
		workers = len(items)
	}

	indexCh := make(chan int, len(items))
	for i := range items {
		indexCh <- i
	}
	close(indexCh)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexCh {
				// 每个下标只被一个 worker 写入，无需加锁
				results[i] = fn(items[i])
			}
		}()
	}
	wg.Wait()
	return results
}
