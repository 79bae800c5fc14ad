package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Task is a named unit of work.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result is the outcome of one Task.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// RunAll executes all tasks concurrently, with at most limit running at the
// same time (limit <= 0 means unbounded). Results are returned in task order
// regardless of completion order.
func RunAll(ctx context.Context, tasks []Task, limit int) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{Name: task.Name, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			start := time.Now()
			err := task.Func(ctx)
			results[i] = Result{Name: task.Name, Err: err, Duration: time.Since(start)}
		}()
	}
	wg.Wait()
	return results
}

// Failed returns only the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Join combines the errors of all failed results, prefixed by task name.
// It returns nil when every task succeeded.
func Join(results []Result) error {
	var errs []error
	for _, r := range Failed(results) {
		errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
	}
	return errors.Join(errs...)
}
