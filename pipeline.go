package ballista

import "sync"

// task runs fn over data split into workersCount contiguous chunks. Each
// element is visited by exactly one goroutine; with a single worker the loop
// runs on the caller's goroutine.
func task[T any](workersCount int, data []T, fn func(data T)) {
	dataSize := len(data)
	if workersCount <= 1 || dataSize < 2 {
		for _, d := range data {
			fn(d)
		}
		return
	}
	workersCount = min(workersCount, dataSize)

	var wg sync.WaitGroup
	chunkSize := (dataSize + workersCount - 1) / workersCount

	for workerID := 0; workerID < workersCount; workerID++ {
		start, end := workerID*chunkSize, min((workerID+1)*chunkSize, dataSize)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(data[i])
			}
		}(start, end)
	}
	wg.Wait()
}
