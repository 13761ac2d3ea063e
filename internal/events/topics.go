package events

const (
	TopicPaymentReconciled   = "payment.reconciled"
	TopicReconcileLineFailed = "payment.reconcile.line_failed"

	// Line-failed events the reconciler gave up on.
	TopicReconcileLineFailedDLQ = "payment.reconcile.line_failed.dlq"
)

// Partition key = tx_ref, so every event of one payment keeps its order.
func PartitionKey(txRef string) []byte { return []byte(txRef) }
