/*
Package synchronizer implements the AM's single-writer thread: the only
code path permitted to mutate the Task/Stage/Pipeline tree.

Run consumes sync-to-master, decodes each message's tagged
Task/Stage/Pipeline payload, locates the target under the owning
pipeline's StageLock, applies the proposed state if it is a valid
forward transition, and acks the sender's reply-to queue before acking
the broker delivery — so a crash mid-apply leaves the message
redeliverable rather than silently lost. A proposal whose state already
matches the current state is a no-op, making retries after an ack
timeout safe to resend.
*/
package synchronizer
