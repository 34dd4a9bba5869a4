package orders

const (
	TopicOrderCreated = "order.created"
	TopicOrderPaid    = "order.paid"
	TopicOrderFailed  = "order.failed"
)

// Partition key = order_id so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
