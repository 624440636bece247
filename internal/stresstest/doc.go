/*
Package stresstest provides sustained HTTP load generation against a fixed set
of target URLs.

# Overview

The stresstest package implements an open-ended GET load loop with:
  - A fixed-size worker pool, one HTTP client per worker
  - Uniform random target selection (see package target)
  - Mutex-guarded aggregate counters
  - Periodic progress lines with per-interval deltas
  - Cooperative shutdown with a bounded drain
  - Optional rate limiting, Prometheus metrics and sqlite run history

# Architecture

The package consists of these components:

 1. Executor (executor.go): lifecycle state machine owning pool and reporter
 2. Worker (worker.go): request loop, classification, per-worker client
 3. Counters (stats.go): shared totals and the Snapshot value
 4. Reporter (reporter.go): progress lines every interval
 5. Latch (latch.go): one-way stop flag
 6. Manager (manager.go): run and interval persistence
 7. Metrics (metrics.go): Prometheus collectors

# Executor Lifecycle

	Starting --Start()--> Running --Stop()--> Stopping --> Stopped

Start launches the workers and the reporter without waiting for them. Stop
sets the latch and waits for the goroutines to return, at most for the
grace period, then takes the final snapshot. Workers never have an in-flight
request cancelled: they finish it (or hit the request timeout) and observe
the latch on their next iteration.

# Classification

Each request ends in exactly one Outcome:
  - Success: response with status 200
  - NonOK: response with any other status
  - TransportFailure: any error while sending the request or reading the body

Every outcome increments the total; NonOK and TransportFailure also increment
the error count, in the same critical section.

# Progress Lines

	[15:04:05] total=1520 (+311/5s) errors=12

The delta is the difference to the previous line's total, starting from 0.

# Example Usage

	exec, err := NewExecutor(&ExecutionConfig{
		Config: &Config{
			Targets:        []string{"http://localhost:5000/api/robots"},
			Workers:        40,
			ReportInterval: 5 * time.Second,
			RequestTimeout: 5 * time.Second,
			GracePeriod:    time.Second,
		},
	}, nil)
	if err != nil {
		return err
	}

	if err := exec.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	final := exec.Stop()
	fmt.Println("Final:", "total=", final.Total, "errors=", final.Errors)

# Thread Safety

All public methods of Executor, Counters, Latch and Manager are safe for
concurrent use. A Reporter is driven by a single goroutine.
*/
package stresstest
