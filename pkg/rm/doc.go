/*
Package rm implements the Resource Manager contract: validate a resource
descriptor, then drive one RTS reservation through submit, cancel, and
allocation-state polling.

ResourceManager holds the descriptor and shared-data staging list; it
delegates the actual reservation lifecycle to an RTSReservation, the
narrow interface any concrete RTS (out of scope for this engine) must
satisfy. pkg/rts/local provides a reference implementation for testing
the control plane end to end.
*/
package rm
