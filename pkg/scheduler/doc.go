// Package scheduler runs delayed, repeating and pooled work.
//
// A Scheduler owns timers and hands due work to a future.Executor. One-shot
// tasks return futures; cancelling the future before the task is due stops
// its timer. Repeating tasks never overlap: the next firing is armed only
// after the previous run returned, so a run that outlasts its interval
// delays the following one instead of running concurrently with it.
//
// Two executors are provided. QueuedPool runs tasks on a fixed set of
// workers fed by a bounded queue and rejects work when the queue is full.
// BlockingPool bounds concurrency and makes submitters wait for a free slot.
package scheduler
