package pos

import "strconv"

const (
	TopicOrderCreated   = "order.created"
	TopicOrderInvoiced  = "order.invoiced"
	TopicOrderCancelled = "order.cancelled"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
