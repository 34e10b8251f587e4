// Package apperr defines the error kinds the inventory engine reports to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category sent to API clients.
type Kind string

const (
	KindValidation               Kind = "ValidationError"
	KindInvalidBundleComposition Kind = "InvalidBundleComposition"
	KindProductNotFound          Kind = "ProductNotFound"
	KindInsufficientStock        Kind = "InsufficientStock"
	KindEmptyOrder               Kind = "EmptyOrder"
	KindInvalidQuantity          Kind = "InvalidQuantity"
	KindOrderNotFound            Kind = "OrderNotFound"
	KindNotFound                 Kind = "NotFound"
	KindInvalidStatusTransition  Kind = "InvalidStatusTransition"
	KindAlertDispatchFailed      Kind = "AlertDispatchFailed"
	KindInternal                 Kind = "InternalError"
)

// Error carries a kind plus the product it concerns, when there is one.
type Error struct {
	Kind      Kind
	Message   string
	ProductID uint
	Requested int
	Available int
	Shortfall int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrEmptyOrder) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation               = &Error{Kind: KindValidation}
	ErrInvalidBundleComposition = &Error{Kind: KindInvalidBundleComposition}
	ErrProductNotFound          = &Error{Kind: KindProductNotFound}
	ErrInsufficientStock        = &Error{Kind: KindInsufficientStock}
	ErrEmptyOrder               = &Error{Kind: KindEmptyOrder}
	ErrInvalidQuantity          = &Error{Kind: KindInvalidQuantity}
	ErrOrderNotFound            = &Error{Kind: KindOrderNotFound}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrInvalidStatusTransition  = &Error{Kind: KindInvalidStatusTransition}
	ErrAlertDispatchFailed      = &Error{Kind: KindAlertDispatchFailed}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InvalidBundle(format string, args ...any) error {
	return &Error{Kind: KindInvalidBundleComposition, Message: fmt.Sprintf(format, args...)}
}

// InvalidBundleFor is InvalidBundle pointing at the offending component.
func InvalidBundleFor(productID uint, format string, args ...any) error {
	return &Error{Kind: KindInvalidBundleComposition, Message: fmt.Sprintf(format, args...), ProductID: productID}
}

func ProductNotFound(id uint) error {
	return &Error{Kind: KindProductNotFound, Message: fmt.Sprintf("product %d not found", id), ProductID: id}
}

func InsufficientStock(id uint, name string, requested, available int) error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, available, requested),
		ProductID: id,
		Requested: requested,
		Available: available,
		Shortfall: requested - available,
	}
}

func EmptyOrder() error {
	return &Error{Kind: KindEmptyOrder, Message: "order must contain at least one product"}
}

func InvalidQuantity(id uint, qty int) error {
	return &Error{Kind: KindInvalidQuantity, Message: fmt.Sprintf("quantity for product %d must be positive, got %d", id, qty), ProductID: id}
}

// QuantityTooLarge is InvalidQuantity for amounts above the allowed maximum.
func QuantityTooLarge(id uint, qty, max int) error {
	return &Error{Kind: KindInvalidQuantity, Message: fmt.Sprintf("quantity for product %d must be at most %d, got %d", id, max, qty), ProductID: id}
}

func OrderNotFound(id uint) error {
	return &Error{Kind: KindOrderNotFound, Message: fmt.Sprintf("order %d not found", id)}
}

func NotFound(what string, id uint) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", what, id)}
}

func InvalidStatusTransition(from, to string) error {
	return &Error{Kind: KindInvalidStatusTransition, Message: fmt.Sprintf("cannot change order status from %s to %s", from, to)}
}

func AlertDispatchFailed(productID uint, err error) error {
	return &Error{Kind: KindAlertDispatchFailed, Message: "low-stock alert could not be delivered", ProductID: productID, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As is a shorthand for errors.As into *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
