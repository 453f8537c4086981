package payment

import "context"

type CustomerDetails struct {
	Email       string
	GivenName   string
	FamilyName  string
	ReferenceID string
}

type Customer struct {
	ID    string
	Email string
}

// ChargeRequest describes an immediate-capture charge.
type ChargeRequest struct {
	AmountCents    int64
	Currency       string
	SourceID       string
	CustomerID     string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

type PaymentResult struct {
	GatewayPaymentID string
	Status           Status
	AmountCents      int64
	Currency         string
	CustomerID       string
	IdempotencyKey   string
	FailureReason    string
}

type RefundRequest struct {
	GatewayPaymentID string
	AmountCents      int64
	IdempotencyKey   string
	Reason           string
}

type RefundResult struct {
	GatewayRefundID string
	Status          string
}

// Gateway is the payment processor boundary. GetCustomer returns
// ErrCustomerNotFound when the processor no longer knows the id.
type Gateway interface {
	CreateCustomer(ctx context.Context, details CustomerDetails) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreatePayment(ctx context.Context, req ChargeRequest) (*PaymentResult, error)
	GetPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResult, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// WebhookEvent is the verified, gateway-neutral view of a callback.
type WebhookEvent struct {
	ID               string
	Type             string
	GatewayPaymentID string
	FailureReason    string
}

const (
	WebhookPaymentSucceeded = "payment_intent.succeeded"
	WebhookPaymentFailed    = "payment_intent.payment_failed"
)

type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

// CustomerLinkStore persists the client to gateway customer mapping.
type CustomerLinkStore interface {
	GatewayCustomerID(ctx context.Context, userID int64) (string, error)
	SetGatewayCustomerID(ctx context.Context, userID int64, customerID string) error
}
