package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPayableNotFound       = errors.New("payable not found")
	ErrPayableNotEligible    = errors.New("payable is not eligible for payment")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrGatewayRejected       = errors.New("payment gateway rejected the request")
	ErrVerificationFailed    = errors.New("payment verification unavailable")
	ErrInvalidStateChange    = errors.New("invalid state change")
	ErrLeaseNotFound         = errors.New("lease not found")
	ErrPropertyAlreadyLeased = errors.New("property already has an active lease")
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindFatal Kind = iota
	KindValidation
	KindNotFound
	KindIntegrity
	KindTransient
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	case KindTransient:
		return "transient"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "fatal"
	}
}

// BusinessError represents a business logic error
type BusinessError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(kind Kind, code, message string, err error) *BusinessError {
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// As extracts a BusinessError from an error chain.
func As(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindFatal when it carries none.
func KindOf(err error) Kind {
	if be, ok := As(err); ok {
		return be.Kind
	}
	return KindFatal
}

// IsRetryable reports whether the same request may succeed later.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Error codes
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodePaymentNotFound         = "PAYMENT_NOT_FOUND"
	ErrCodePayableNotFound         = "PAYABLE_NOT_FOUND"
	ErrCodePayableNotEligible      = "PAYABLE_NOT_ELIGIBLE"
	ErrCodeInvalidSignature        = "INVALID_SIGNATURE"
	ErrCodeGatewayUnavailable      = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayRejected         = "GATEWAY_REJECTED"
	ErrCodeVerificationUnavailable = "VERIFICATION_UNAVAILABLE"
	ErrCodeInvalidStateChange      = "INVALID_STATE_CHANGE"
	ErrCodeLeaseNotFound           = "LEASE_NOT_FOUND"
	ErrCodePropertyAlreadyLeased   = "PROPERTY_ALREADY_LEASED"
	ErrCodeDatabaseError           = "DATABASE_ERROR"
	ErrCodeCacheError              = "CACHE_ERROR"
)

// Wrap common errors with business context
func WrapValidation(message string, err error) *BusinessError {
	return NewBusinessError(KindValidation, ErrCodeValidation, message, err)
}

func WrapPaymentNotFound(transactionID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodePaymentNotFound,
		fmt.Sprintf("Payment with transaction ID %s not found", transactionID),
		ErrPaymentNotFound,
	)
}

func WrapPayableNotFound(ref fmt.Stringer) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodePayableNotFound,
		fmt.Sprintf("Payable %s not found", ref),
		ErrPayableNotFound,
	)
}

func WrapPayableNotEligible(ref fmt.Stringer, status string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodePayableNotEligible,
		fmt.Sprintf("Payable %s cannot be paid while %s", ref, status),
		ErrPayableNotEligible,
	)
}

func WrapInvalidSignature() *BusinessError {
	return NewBusinessError(
		KindUnauthorized,
		ErrCodeInvalidSignature,
		"Webhook signature does not match payload",
		ErrInvalidSignature,
	)
}

func WrapGatewayUnavailable(err error) *BusinessError {
	return NewBusinessError(
		KindTransient,
		ErrCodeGatewayUnavailable,
		"Payment gateway is unavailable, try again later",
		errors.Join(ErrGatewayUnavailable, err),
	)
}

func WrapGatewayRejected(message string, err error) *BusinessError {
	return NewBusinessError(
		KindIntegrity,
		ErrCodeGatewayRejected,
		fmt.Sprintf("Payment gateway rejected the request: %s", message),
		errors.Join(ErrGatewayRejected, err),
	)
}

func WrapVerificationUnavailable(err error) *BusinessError {
	return NewBusinessError(
		KindTransient,
		ErrCodeVerificationUnavailable,
		"Payment could not be verified with the gateway, retry later",
		errors.Join(ErrVerificationFailed, err),
	)
}

func WrapInvalidStateChange(err error) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeInvalidStateChange,
		"Requested change is not allowed in the current state",
		errors.Join(ErrInvalidStateChange, err),
	)
}

func WrapLeaseNotFound(leaseID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeLeaseNotFound,
		fmt.Sprintf("Lease with ID %s not found", leaseID),
		ErrLeaseNotFound,
	)
}

func WrapPropertyAlreadyLeased(propertyID string) *BusinessError {
	return NewBusinessError(
		KindIntegrity,
		ErrCodePropertyAlreadyLeased,
		fmt.Sprintf("Property %s already has an active lease", propertyID),
		ErrPropertyAlreadyLeased,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		KindFatal,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		KindTransient,
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
