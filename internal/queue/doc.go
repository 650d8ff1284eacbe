// Package queue holds the in-memory work queue shared by the GPU workers of a
// single scheduler generation.
//
// Items are plain values: a path and the number of times it has already been
// handed back for retry. The queue is FIFO, safe for any number of producers
// and consumers, and never blocks; workers poll it and decide for themselves
// when an empty queue means they are done. Retry re-insertion is bounded by
// MaxRetries so a file that keeps failing is eventually reported as a
// permanent failure instead of cycling forever.
//
// Nothing here is persisted. A restarted generation builds a new queue from a
// fresh directory scan.
package queue
