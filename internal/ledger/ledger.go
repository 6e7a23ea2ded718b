// Package ledger owns the durable payment records: idempotent enqueue
// onto the payment stream, the per-payment hash records, the
// time-ordered index and the range aggregation over it.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go-gateway/internal/codec"
	"go-gateway/internal/config"
	"go-gateway/internal/types"

	"github.com/bytedance/sonic"
)

const (
	// StreamName is the durable queue every payment passes through.
	StreamName = "payment_stream"

	paymentKeyPrefix = "payment_"
	dateIndexKey     = "payments_by_date"
)

// Store is the slice of the coordination store the ledger needs.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	XAdd(ctx context.Context, stream string, fields map[string]string) (string, error)
	HSet(ctx context.Context, key string, pairs ...any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
}

// Forwarder posts a payment body to a downstream processor.
type Forwarder interface {
	PostPayment(targetURL string, jsonData []byte, timeout time.Duration) (int, error)
}

type Ledger struct {
	store  Store
	client Forwarder
	config *config.Config
}

func NewLedger(store Store, client Forwarder, config *config.Config) *Ledger {
	return &Ledger{
		store:  store,
		client: client,
		config: config,
	}
}

// Submit accepts a payment exactly once: a correlationId that already
// has a record is rejected with ErrDuplicateCorrelationID, anything
// else is stamped, flattened and appended to the payment stream.
// requestedAt is owned by intake; whatever the client sent is
// discarded so the index score is always derivable downstream.
func (l *Ledger) Submit(ctx context.Context, request *types.PaymentRequest) error {
	request.RequestedAt = time.Now().UTC().Format(types.TimestampLayout)

	exists, err := l.store.Exists(ctx, paymentKey(request.CorrelationID))
	if err != nil {
		return fmt.Errorf("check correlationId: %w", err)
	}
	if exists {
		return types.ErrDuplicateCorrelationID
	}

	fields := codec.Flatten(map[string]any{
		"correlationId": request.CorrelationID,
		"amount":        request.Amount,
		"requestedAt":   request.RequestedAt,
	})
	fields["enqueuedAtAsTimestamp"] = strconv.FormatInt(time.Now().Unix(), 10)

	if _, err := l.store.XAdd(ctx, StreamName, fields); err != nil {
		return fmt.Errorf("enqueue payment: %w", err)
	}
	return nil
}

// RecordForwarded persists the full payment record, processor
// included, and indexes it by requestedAt. A record missing either
// correlationId or requestedAt is stored but not indexed.
func (l *Ledger) RecordForwarded(ctx context.Context, payment map[string]string) error {
	correlationID := payment["correlationId"]
	if err := l.store.HSet(ctx, paymentKey(correlationID), codec.MapToPairs(payment)...); err != nil {
		return fmt.Errorf("save payment record: %w", err)
	}

	requestedAt := payment["requestedAt"]
	if correlationID == "" || requestedAt == "" {
		return nil
	}

	score, err := scoreForTimestamp(requestedAt)
	if err != nil {
		return fmt.Errorf("index payment: %w", err)
	}

	if err := l.store.ZAdd(ctx, dateIndexKey, score, correlationID); err != nil {
		return fmt.Errorf("index payment: %w", err)
	}
	return nil
}

// Forward posts the payment to the processor's payment endpoint. A
// 422 means the processor has already seen this exact payment, so it
// counts as success; either way the ledger record is written before
// returning.
func (l *Ledger) Forward(ctx context.Context, payment map[string]string, processor types.Processor) error {
	body, err := sonic.Marshal(forwardBody(payment))
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}

	statusCode, err := l.client.PostPayment(l.config.ProcessorPaymentURL(processor), body, l.config.ForwardTimeout)
	if err != nil {
		return fmt.Errorf("forward payment: %w", err)
	}

	if (statusCode < 200 || statusCode >= 300) && statusCode != 422 {
		return fmt.Errorf("forward payment: unexpected status %d", statusCode)
	}

	return l.RecordForwarded(ctx, payment)
}

// forwardBody rebuilds the nested payment from its flat queue form.
// The transport is string-only, so amount is turned back into a number
// before it goes out.
func forwardBody(payment map[string]string) map[string]any {
	body := codec.Expand(payment)
	delete(body, "enqueuedAtAsTimestamp")

	if raw, ok := body["amount"].(string); ok {
		if amount, err := strconv.ParseFloat(raw, 64); err == nil {
			body["amount"] = amount
		}
	}
	return body
}

// SummarizeByRange aggregates payments per processor over the index.
// A "to" bound without a "from" bound is invalid; a missing "to"
// defaults to now; both bounds missing aggregates the whole index.
func (l *Ledger) SummarizeByRange(ctx context.Context, from, to *time.Time) (*types.PaymentSummaryResponse, error) {
	if from == nil && to != nil {
		return nil, types.ErrInvalidRange
	}

	var (
		ids []string
		err error
	)

	if from == nil && to == nil {
		ids, err = l.store.ZRange(ctx, dateIndexKey)
	} else {
		end := time.Now().UTC()
		if to != nil {
			end = *to
		}
		ids, err = l.store.ZRangeByScore(ctx, dateIndexKey, scoreForTime(*from), scoreForTime(end))
	}
	if err != nil {
		return nil, fmt.Errorf("query payment index: %w", err)
	}

	return l.aggregate(ctx, ids)
}

func (l *Ledger) aggregate(ctx context.Context, ids []string) (*types.PaymentSummaryResponse, error) {
	summaries := map[types.Processor]*types.PaymentSummary{
		types.ProcessorDefault:  {},
		types.ProcessorFallback: {},
	}

	for _, id := range ids {
		payment, err := l.store.HGetAll(ctx, paymentKey(id))
		if err != nil {
			return nil, fmt.Errorf("fetch payment %s: %w", id, err)
		}

		summary, ok := summaries[types.Processor(payment["processor"])]
		if !ok {
			continue
		}

		amount, _ := strconv.ParseFloat(payment["amount"], 64)
		summary.TotalRequests++
		summary.TotalAmount += amount
	}

	for _, summary := range summaries {
		summary.TotalAmount = math.Round(summary.TotalAmount*100) / 100
	}

	return &types.PaymentSummaryResponse{
		Default:  *summaries[types.ProcessorDefault],
		Fallback: *summaries[types.ProcessorFallback],
	}, nil
}

func paymentKey(correlationID string) string {
	return paymentKeyPrefix + correlationID
}

func scoreForTimestamp(requestedAt string) (float64, error) {
	t, err := time.Parse(time.RFC3339Nano, requestedAt)
	if err != nil {
		return 0, fmt.Errorf("parse requestedAt: %w", err)
	}
	return scoreForTime(t), nil
}

// scoreForTime maps a timestamp to a fractional unix-seconds score so
// the index stays ordered by requestedAt down to the microsecond.
func scoreForTime(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
