package handler

import (
	"context"
	"errors"
	"log"
	"time"

	"go-gateway/internal/types"

	"github.com/araddon/dateparse"
	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasthttp"
)

// PaymentIntake is the ledger surface the HTTP layer needs.
type PaymentIntake interface {
	Submit(ctx context.Context, request *types.PaymentRequest) error
	SummarizeByRange(ctx context.Context, from, to *time.Time) (*types.PaymentSummaryResponse, error)
}

type PaymentHandler struct {
	ledger   PaymentIntake
	validate *validator.Validate
}

func NewPaymentHandler(ledger PaymentIntake) *PaymentHandler {
	return &PaymentHandler{
		ledger:   ledger,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) PostPayments(ctx *fasthttp.RequestCtx) {
	var request types.PaymentRequest
	if err := sonic.Unmarshal(ctx.PostBody(), &request); err != nil {
		writeError(ctx, fasthttp.StatusUnprocessableEntity, "invalid request body")
		return
	}

	if err := h.validate.Struct(&request); err != nil {
		writeError(ctx, fasthttp.StatusUnprocessableEntity, "invalid or missing correlationId or amount")
		return
	}

	if err := h.ledger.Submit(ctx, &request); err != nil {
		if errors.Is(err, types.ErrDuplicateCorrelationID) {
			writeError(ctx, fasthttp.StatusConflict, err.Error())
			return
		}
		log.Printf("[http] ERROR - submitting payment: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusCreated)
	ctx.SetBodyString(`{"success-message":"Payment sent"}`)
}

func (h *PaymentHandler) GetPaymentsSummary(ctx *fasthttp.RequestCtx) {
	from, ok := parseDateArg(ctx, "from")
	if !ok {
		return
	}
	to, ok := parseDateArg(ctx, "to")
	if !ok {
		return
	}

	result, err := h.ledger.SummarizeByRange(ctx, from, to)
	if err != nil {
		if errors.Is(err, types.ErrInvalidRange) {
			writeError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[http] ERROR - summarizing payments: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	response, err := sonic.Marshal(result)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetBody(response)
}

func (h *PaymentHandler) GetHealth(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(`{"status":"ok"}`)
}

func parseDateArg(ctx *fasthttp.RequestCtx, name string) (*time.Time, bool) {
	raw := string(ctx.QueryArgs().Peek(name))
	if raw == "" {
		return nil, true
	}

	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid params")
		return nil, false
	}

	parsed = parsed.UTC()
	return &parsed, true
}

func writeError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)

	body, err := sonic.Marshal(map[string]string{"error-message": message})
	if err != nil {
		return
	}
	ctx.SetBody(body)
}
