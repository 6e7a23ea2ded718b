package types

type Processor string

const (
	ProcessorDefault  Processor = "default"
	ProcessorFallback Processor = "fallback"
)

// TimestampLayout is the wire format for requestedAt: UTC with
// microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

type PaymentRequest struct {
	CorrelationID string    `json:"correlationId" validate:"required,uuid4"`
	Amount        float64   `json:"amount" validate:"required,gt=0"`
	RequestedAt   string    `json:"requestedAt,omitempty"`
	Processor     Processor `json:"processor,omitempty"`
}

// HealthSnapshot is a cached probe result for one processor. Failing
// and MinResponseTime come from the processor itself; Latency is the
// measured round trip of the probe call, in milliseconds.
type HealthSnapshot struct {
	Failing         bool    `json:"failing"`
	MinResponseTime float64 `json:"minResponseTime"`
	Latency         float64 `json:"latency"`
}

type PaymentSummary struct {
	TotalRequests int     `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

type PaymentSummaryResponse struct {
	Default  PaymentSummary `json:"default"`
	Fallback PaymentSummary `json:"fallback"`
}
