/*
Package local provides an os/exec-based reference RTS: LocalRTS runs
each task as a local shell invocation of pre_exec, the executable, and
post_exec in sequence, and Reservation satisfies pkg/rm's RTSReservation
contract with an always-available local reservation. Neither is a
substitute for a production RTS; both exist so the control plane
(TaskManager, WorkflowProcessor, ResourceManager, the synchronizer) can
be exercised and tested end to end without a real cluster scheduler.
*/
package local
