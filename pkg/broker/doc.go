/*
Package broker wraps a RabbitMQ connection (github.com/rabbitmq/amqp091-go)
for the durable named queues the engine's control plane communicates
over: pending-* and completed-* task handoff, the single sync-to-master
proposal queue, per-role sync-ack reply queues, and per-component
heartbeat request/response queues.

Every queue is declared durable and is torn down and redeclared at
session start (DeclareQueue), or, for a TaskManager's heartbeat pair,
each time that TaskManager is spawned, since a queue's contents only make sense
for the AppManager session that created it. Publishers that need a
synchronous round trip (a sync-to-master proposal, a heartbeat probe)
use PublishWithReply plus AwaitAck rather than fire-and-forget Publish.

# Usage

	conn, _ := broker.Dial(broker.Config{Hostname: "localhost", Port: 5672})
	defer conn.Close()

	q := broker.SyncToMaster(sessionID)
	conn.DeclareQueue(q)
	conn.DeclareQueue(broker.SyncAckQueue(sessionID, broker.RoleEnqueuer))

	conn.PublishWithReply(ctx, q, broker.SyncAckQueue(sessionID, broker.RoleEnqueuer), msgID, body)
	conn.AwaitAck(broker.SyncAckQueue(sessionID, broker.RoleEnqueuer), msgID, 30*time.Second)
*/
package broker
