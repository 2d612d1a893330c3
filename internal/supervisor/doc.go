// Package supervisor is the default, in-process implementation of
// poolcore.Supervisor: one goroutine per worker, a semaphore.Weighted
// throttling how many spawns can be in flight at once, and an errgroup-driven
// Shutdown that terminates every tracked worker concurrently and waits for
// them all to exit.
package supervisor
