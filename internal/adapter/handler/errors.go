package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
}

type errorMapping struct {
	kind   error
	name   string
	status int
	code   codes.Code
}

var errorMappings = []errorMapping{
	{domain.ErrValidation, "validation_error", http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrNotFound, "not_found", http.StatusNotFound, codes.NotFound},
	{domain.ErrInsufficientStock, "insufficient_stock", http.StatusUnprocessableEntity, codes.FailedPrecondition},
	{domain.ErrOverConsumption, "over_consumption", http.StatusUnprocessableEntity, codes.FailedPrecondition},
	{domain.ErrOverCancellation, "over_cancellation", http.StatusUnprocessableEntity, codes.FailedPrecondition},
	{domain.ErrOverReturn, "over_return", http.StatusUnprocessableEntity, codes.FailedPrecondition},
	{domain.ErrConcurrencyConflict, "concurrency_conflict", http.StatusConflict, codes.Aborted},
	{domain.ErrConflict, "conflict", http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrDuplicatePart, "duplicate_part", http.StatusConflict, codes.AlreadyExists},
}

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

var contextMappings = []errorMapping{
	{context.Canceled, "request_cancelled", statusClientClosedRequest, codes.Canceled},
	{context.DeadlineExceeded, "deadline_exceeded", http.StatusGatewayTimeout, codes.DeadlineExceeded},
}

var internalError = errorMapping{name: "internal_error", status: http.StatusInternalServerError, code: codes.Internal}

func mappingFor(err error) errorMapping {
	kind := domain.KindOf(err)
	for _, m := range errorMappings {
		if kind == m.kind {
			return m
		}
	}
	for _, m := range contextMappings {
		if errors.Is(err, m.kind) {
			return m
		}
	}
	return internalError
}

// newErrorResponse hides internal error text from callers.
func newErrorResponse(err error) (int, ErrorResponse) {
	m := mappingFor(err)
	resp := ErrorResponse{Error: m.name, Message: "internal error"}
	if m.kind == nil {
		return m.status, resp
	}

	resp.Message = err.Error()
	resp.Retryable = domain.IsRetryable(err)
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Requested = de.Requested
		resp.Available = de.Available
	}
	return m.status, resp
}
