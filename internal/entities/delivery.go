package entities

type DeliveryStatus string

const (
	DeliveryDelivered      DeliveryStatus = "delivered"
	DeliveryFailed         DeliveryStatus = "failed"
	DeliveryQuotaExhausted DeliveryStatus = "quota_exhausted"
)

// DeliveryResult is what a sink reports for a single note.
// Reason is set only for failed deliveries.
type DeliveryResult struct {
	Status DeliveryStatus
	Reason string
}

func Delivered() DeliveryResult {
	return DeliveryResult{Status: DeliveryDelivered}
}

func DeliveryFailure(reason string) DeliveryResult {
	return DeliveryResult{Status: DeliveryFailed, Reason: reason}
}

func QuotaExhausted() DeliveryResult {
	return DeliveryResult{Status: DeliveryQuotaExhausted, Reason: "daily quota exhausted"}
}

func (r DeliveryResult) OK() bool {
	return r.Status == DeliveryDelivered
}
