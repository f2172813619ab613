// Package workerPool provides a bounded task pool with per-batch result
// rooms. The verify sweep uses it to check many blobs in parallel; each blob
// is an independent pipeline, so there is no shared state between tasks.
package workerPool

import (
	"fmt"
	"runtime"
	"sync"
)

type WorkerPool struct {
	config    Config
	taskQueue chan task
	closeOnce sync.Once
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

type task struct {
	run  func() interface{}
	room *Room
}

// Room collects the results of one batch of tasks.
type Room struct {
	resultChan chan interface{}
	wg         sync.WaitGroup
	wp         *WorkerPool
}

func New(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 1024
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan task, config.GlobalBuffer),
	}

	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	for t := range wp.taskQueue {
		t.room.resultChan <- t.run()
		t.room.wg.Done()
	}
}

// Close stops the workers once the queued tasks have drained. Submitting
// after Close panics.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.taskQueue)
	})
}

// CreateRoom prepares a result room sized for the expected batch.
func (wp *WorkerPool) CreateRoom(size int) *Room {
	if size < 1 {
		size = 1
	}
	return &Room{
		resultChan: make(chan interface{}, size),
		wp:         wp,
	}
}

// Submit queues a task, blocking while the global buffer is full.
func (ro *Room) Submit(job func() interface{}) {
	ro.wg.Add(1)
	ro.wp.taskQueue <- task{run: job, room: ro}
}

// TrySubmit queues a task or fails immediately when a buffer is full.
func (ro *Room) TrySubmit(job func() interface{}) error {
	if len(ro.wp.taskQueue) == cap(ro.wp.taskQueue) {
		return fmt.Errorf("workerPool: global buffer full")
	}
	if len(ro.resultChan) == cap(ro.resultChan) {
		return fmt.Errorf("workerPool: room buffer full")
	}
	ro.Submit(job)
	return nil
}

// Collect waits for every submitted task and returns all results. Call it
// exactly once per room, after the last Submit.
func (ro *Room) Collect() []interface{} {
	go func() {
		ro.wg.Wait()
		close(ro.resultChan)
	}()

	results := make([]interface{}, 0, cap(ro.resultChan))
	for result := range ro.resultChan {
		results = append(results, result)
	}
	return results
}
