// Package paymenttest provides an in-memory payment gateway for tests.
package paymenttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coachbook/internal/domain/payment"
)

// Gateway records calls and replays charges by idempotency key the way a real
// processor does.
type Gateway struct {
	mu sync.Mutex

	Customers     map[string]*payment.Customer
	Charges       []payment.ChargeRequest
	Refunds       []payment.RefundRequest
	byKey         map[string]*payment.PaymentResult
	byID          map[string]*payment.PaymentResult
	seq           int
	ChargeErr     error
	CustomerErr   error
	RefundErr     error
	ChargeStatus  payment.Status
	CustomersMade int
}

func New() *Gateway {
	return &Gateway{
		Customers:    map[string]*payment.Customer{},
		byKey:        map[string]*payment.PaymentResult{},
		byID:         map[string]*payment.PaymentResult{},
		ChargeStatus: payment.StatusSucceeded,
	}
}

func (g *Gateway) CreateCustomer(_ context.Context, details payment.CustomerDetails) (*payment.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CustomerErr != nil {
		return nil, g.CustomerErr
	}
	g.seq++
	g.CustomersMade++
	c := &payment.Customer{ID: fmt.Sprintf("cus_%d", g.seq), Email: details.Email}
	g.Customers[c.ID] = c
	return c, nil
}

func (g *Gateway) GetCustomer(_ context.Context, id string) (*payment.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.Customers[id]
	if !ok {
		return nil, payment.ErrCustomerNotFound
	}
	return c, nil
}

func (g *Gateway) CreatePayment(_ context.Context, req payment.ChargeRequest) (*payment.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Charges = append(g.Charges, req)
	if g.ChargeErr != nil {
		return nil, g.ChargeErr
	}
	if prev, ok := g.byKey[req.IdempotencyKey]; ok {
		cp := *prev
		return &cp, nil
	}
	g.seq++
	res := &payment.PaymentResult{
		GatewayPaymentID: fmt.Sprintf("pi_%d", g.seq),
		Status:           g.ChargeStatus,
		AmountCents:      req.AmountCents,
		Currency:         req.Currency,
		CustomerID:       req.CustomerID,
	}
	g.byKey[req.IdempotencyKey] = res
	g.byID[res.GatewayPaymentID] = res
	cp := *res
	return &cp, nil
}

func (g *Gateway) GetPayment(_ context.Context, id string) (*payment.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.byID[id]
	if !ok {
		return nil, errors.New("no such payment")
	}
	cp := *res
	return &cp, nil
}

// Settle changes the status the gateway reports for a payment.
func (g *Gateway) Settle(id string, status payment.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.byID[id]; ok {
		res.Status = status
	}
}

func (g *Gateway) CreateRefund(_ context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Refunds = append(g.Refunds, req)
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	g.seq++
	return &payment.RefundResult{GatewayRefundID: fmt.Sprintf("re_%d", g.seq), Status: "succeeded"}, nil
}

// ChargeCount is safe to call while charges are in flight.
func (g *Gateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Charges)
}

// PaymentCount is the number of distinct payments the gateway created.
func (g *Gateway) PaymentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}

// Links is an in-memory CustomerLinkStore.
type Links struct {
	mu    sync.Mutex
	Links map[int64]string
}

func NewLinks() *Links {
	return &Links{Links: map[int64]string{}}
}

func (l *Links) GatewayCustomerID(_ context.Context, userID int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Links[userID], nil
}

func (l *Links) SetGatewayCustomerID(_ context.Context, userID int64, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Links[userID] = id
	return nil
}
