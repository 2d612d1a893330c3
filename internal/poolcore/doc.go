// Package poolcore defines the vocabulary shared by the coordinator and the
// worker supervisor: the worker protocol, the spawn/terminate contract, and
// the small set of opaque tokens the coordinator uses to track clients.
//
// Nothing in this package holds state; it exists so internal/coordinator and
// internal/supervisor can depend on the same types without depending on each
// other.
package poolcore
