// Package pool is the public entry point: New builds a generic worker pool
// from a Factory and a set of functional options, and Pool exposes
// checkout/checkin/work/transaction/status/stop to callers. Internally it
// wires internal/coordinator and internal/supervisor together.
package pool
