package service

import (
	"errors"
	"fmt"
)

// Categories. Handlers map these to HTTP statuses with errors.Is.
var (
	ErrValidation    = errors.New("validation")   // 400
	ErrUnauthorized  = errors.New("unauthorized") // 401
	ErrForbidden     = errors.New("forbidden")    // 403
	ErrNotFound      = errors.New("not found")    // 404
	ErrStateConflict = errors.New("state conflict")
	ErrGateway       = errors.New("upstream provider failed") // 502
)

// Error is a failure that is safe to show to the caller. Kind is one of the
// categories above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

var (
	ErrProductNotFound     = &Error{ErrNotFound, "product not found"}
	ErrOrderNotFound       = &Error{ErrNotFound, "order not found"}
	ErrProfileNotFound     = &Error{ErrNotFound, "payout account not found"}
	ErrGatewayInit         = &Error{ErrGateway, "could not start the payment, please try again"}
	ErrPaymentNotConfirmed = &Error{ErrValidation, "payment has not been confirmed by the gateway"}
	ErrWrongProductType    = &Error{ErrValidation, "product is not a digital product"}
	ErrNoDeliveryAddress   = &Error{ErrValidation, "no delivery email available for this order"}
	ErrAccessDenied        = &Error{ErrForbidden, "you do not have access to this order"}
	ErrInvalidToken        = &Error{ErrForbidden, "download link is invalid or has expired"}
	ErrFileUnavailable     = &Error{ErrNotFound, "file is not available"}
	ErrInvalidSignature    = &Error{ErrUnauthorized, "invalid webhook signature"}

	// ErrAlreadyProcessed is a soft outcome: the order moved on already.
	ErrAlreadyProcessed  = &Error{ErrStateConflict, "order has already been processed"}
	ErrInvalidTransition = &Error{ErrStateConflict, "order status cannot be changed that way"}
	ErrOrderNotPaid      = &Error{ErrStateConflict, "order has not been paid"}
)

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func gatewayError(msg string, cause error) error {
	return fmt.Errorf("%w: %v", &Error{Kind: ErrGateway, Msg: msg}, cause)
}
