// Package resource bounds background work and IO for a connection.
//
// The Controller provides two limits:
//
//   - Concurrency: a weighted semaphore caps concurrent background jobs
//     such as index builds.
//   - IO: a token bucket rate-limits fragment and index reads.
//
// A Pool runs background jobs under a Controller and ties them to the
// lifetime of its owner:
//
//	pool := resource.NewPool(resource.NewController(resource.Config{
//	    MaxBackgroundWorkers: 2,
//	}))
//	defer pool.Close() // cancels running jobs and waits for them
//
//	_ = pool.Go(func(ctx context.Context) {
//	    // build an index
//	})
//
// # Nil Safety
//
// All Controller methods handle a nil Controller gracefully - they become
// no-ops.
package resource
