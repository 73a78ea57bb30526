/*
Package rts defines the abstract Runtime/Resource/Task Scheduling
contract TaskManager submits work to. The concrete RTS that runs tasks
on a real cluster is out of scope for this engine; pkg/rts/local
provides an os/exec-based reference implementation so the rest of the
control plane (TaskManager, WorkflowProcessor, the synchronizer) can be
built and tested against a real, if minimal, executor.
*/
package rts
