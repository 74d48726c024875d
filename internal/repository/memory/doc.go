// Package memory implements the drip repositories in process memory.
//
// Every type guards its state with a mutex and applies the same conditional
// rules as the Postgres queries, so the engine behaves identically on
// either backend. Used by tests and by the server's memory driver.
package memory
