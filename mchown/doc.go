// Package mchown changes the ownership of directory trees using a pool of
// worker goroutines.
//
// A Pool is created once with a fixed number of workers. Each call to Run
// walks one hierarchy: the calling goroutine handles the root directory,
// subdirectories are handed to idle workers through a bounded work queue,
// and Run returns once no job for that hierarchy is queued or running.
//
// Job records live in a slab sized to the worker count, so the queue can
// never hold more directories than there are workers. When it is full, a
// worker walks the subdirectory itself instead of waiting.
//
// Symbolic links are chowned themselves and never followed. Failing to open
// a directory aborts the traversal for the whole pool; failures on single
// entries are counted and reported in the run's Stats.
package mchown
