package worker

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// reportMessage is one decoded report request on its way to the pool
type reportMessage struct {
	MatchID  int64
	delivery amqp.Delivery
}

// deliveryCount reports how many times the broker delivered the message
// before this one. Quorum queues carry x-delivery-count; classic queues
// only flag redelivery.
func deliveryCount(d amqp.Delivery) int {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	}
	if d.Redelivered {
		return 1
	}
	return 0
}
