package payment

import "errors"

var (
	ErrCustomerNotFound  = errors.New("gateway customer not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrRefundExceeds     = errors.New("refund exceeds refundable amount")
	ErrNotRefundable     = errors.New("payment is not refundable")
	ErrPaymentIncomplete = errors.New("payment was not completed by the gateway")
)
