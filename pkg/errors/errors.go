package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"

	"github.com/salvashop/shopapi/internal/domain"
)

// ErrNotFound is returned when a product, order, coupon or user does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation carries a human readable reason for a rejected request
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

// ErrConflict signals a concurrent modification the caller should retry
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInsufficientStock is returned when a reservation cannot be satisfied
type ErrInsufficientStock struct {
	ProductID string
	SKU       string
	Requested int
	Available int
}

func (e *ErrInsufficientStock) Error() string {
	if e.SKU != "" {
		return fmt.Sprintf("insufficient stock for product %s variant %s: requested %d, available %d",
			e.ProductID, e.SKU, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	return e.Message
}

type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	return e.Message
}

// ErrInvalidStateTransition is returned when an order cannot move between two statuses
type ErrInvalidStateTransition struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// ErrGateway wraps failures talking to the payment provider
type ErrGateway struct {
	Message string
	Err     error
}

func (e *ErrGateway) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ErrGateway) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return stdErrors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ErrConflict
	return stdErrors.As(err, &target)
}

func IsInsufficientStock(err error) bool {
	var target *ErrInsufficientStock
	return stdErrors.As(err, &target)
}

// HTTPStatus maps an error onto the response code the API surfaces for it
func HTTPStatus(err error) int {
	var (
		notFound     *ErrNotFound
		validation   *ErrValidation
		conflict     *ErrConflict
		stock        *ErrInsufficientStock
		unauthorized *ErrUnauthorized
		forbidden    *ErrForbidden
		transition   *ErrInvalidStateTransition
		gateway      *ErrGateway
	)
	switch {
	case err == nil:
		return http.StatusOK
	case stdErrors.As(err, &notFound):
		return http.StatusNotFound
	case stdErrors.As(err, &validation):
		return http.StatusBadRequest
	case stdErrors.As(err, &stock):
		return http.StatusBadRequest
	case stdErrors.As(err, &conflict):
		return http.StatusConflict
	case stdErrors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case stdErrors.As(err, &forbidden):
		return http.StatusForbidden
	case stdErrors.As(err, &transition):
		return http.StatusBadRequest
	case stdErrors.As(err, &gateway):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
