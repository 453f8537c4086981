package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"coachbook/internal/domain/payment"
	"coachbook/internal/domain/payment/paymenttest"
	"coachbook/internal/outbox"
	"coachbook/internal/pkg/apperr"
	"coachbook/internal/pkg/jwt"
)

const webhookSecret = "whsec_test_secret"

type fixture struct {
	db      *gorm.DB
	gateway *paymenttest.Gateway
	links   *paymenttest.Links
	svc     *payment.Service
}

func setupTestService(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(append(payment.Models(), outbox.Models()...)...))

	gw := paymenttest.New()
	links := paymenttest.NewLinks()
	svc := payment.NewService(db, gw, payment.NewStripeWebhookVerifier(webhookSecret), links, "USD", nil)
	return &fixture{db: db, gateway: gw, links: links, svc: svc}
}

func (f *fixture) seedPayment(t *testing.T, status payment.Status, gatewayID string) *payment.Payment {
	t.Helper()
	p := &payment.Payment{
		BookingRequestID:   1,
		ClientID:           10,
		CoachID:            20,
		AmountCents:        9000,
		PlatformFeeCents:   1350,
		CoachEarningsCents: 7650,
		Currency:           "USD",
		Status:             status,
		GatewayPaymentID:   gatewayID,
		IdempotencyKey:     "key-" + gatewayID,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func signedHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent","status":"succeeded","amount":9000,"currency":"usd"}}}`, eventType, intentID))
}

func countEvents(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&outbox.Event{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "90.00", payment.FormatAmount(9000))
	assert.Equal(t, "0.05", payment.FormatAmount(5))
	assert.Equal(t, "1234.56", payment.FormatAmount(123456))
	assert.Equal(t, "0.00", payment.FormatAmount(0))
}

func TestNewIdempotencyKeyIsUnique(t *testing.T) {
	a := payment.NewIdempotencyKey("pay")
	b := payment.NewIdempotencyKey("pay")
	assert.True(t, strings.HasPrefix(a, "pay-"))
	assert.NotEqual(t, a, b)
}

func TestChargeSameIdempotencyKeyCapturesOnce(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	req := payment.ChargeRequest{AmountCents: 9000, SourceID: "pm_card", IdempotencyKey: "booking-1-retry", ReferenceID: "booking-1"}

	first, err := f.svc.Charge(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Charge(ctx, req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.GatewayPaymentID, "pi_"))
	assert.Equal(t, first.GatewayPaymentID, second.GatewayPaymentID)
	assert.Equal(t, "booking-1-retry", second.IdempotencyKey)
	assert.Equal(t, 1, f.gateway.PaymentCount())
	for _, c := range f.gateway.Charges {
		assert.Equal(t, "booking-1-retry", c.IdempotencyKey)
	}

	other := req
	other.IdempotencyKey = "booking-1-other"
	third, err := f.svc.Charge(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first.GatewayPaymentID, third.GatewayPaymentID)
	assert.Equal(t, 2, f.gateway.PaymentCount())
}

func TestChargeValidatesAndWrapsGatewayErrors(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	_, err := f.svc.Charge(ctx, payment.ChargeRequest{AmountCents: 0, SourceID: "pm_card"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f.gateway.ChargeErr = errors.New("card declined")
	_, err = f.svc.Charge(ctx, payment.ChargeRequest{AmountCents: 9000, SourceID: "pm_card"})
	assert.ErrorIs(t, err, apperr.ErrGateway)
	var gwErr *apperr.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "create_payment", gwErr.Op)
}

func TestChargeGeneratesKeyAndReportsProcessing(t *testing.T) {
	f := setupTestService(t)
	f.gateway.ChargeStatus = payment.StatusProcessing

	res, err := f.svc.Charge(context.Background(), payment.ChargeRequest{AmountCents: 9000, SourceID: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, res.Status)
	assert.NotEmpty(t, res.IdempotencyKey)
	assert.Equal(t, "USD", f.gateway.Charges[0].Currency)
}

func TestGetOrCreateCustomer(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	id, err := f.svc.GetOrCreateCustomer(ctx, 10, payment.CustomerDetails{Email: "c@example.com", GivenName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, id, f.links.Links[10])

	again, err := f.svc.GetOrCreateCustomer(ctx, 10, payment.CustomerDetails{})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, f.gateway.CustomersMade)

	// link points at a customer the gateway no longer knows
	f.links.Links[10] = "cus_deleted"
	fresh, err := f.svc.GetOrCreateCustomer(ctx, 10, payment.CustomerDetails{})
	require.NoError(t, err)
	assert.NotEqual(t, "cus_deleted", fresh)
	assert.Equal(t, fresh, f.links.Links[10])
	assert.Equal(t, 2, f.gateway.CustomersMade)
}

func TestRefund(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	p := f.seedPayment(t, payment.StatusSucceeded, "pi_refund")

	_, err := f.svc.Refund(ctx, 1, payment.RefundInput{PaymentID: p.ID, AmountCents: 9001})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	refund, err := f.svc.Refund(ctx, 1, payment.RefundInput{PaymentID: p.ID, AmountCents: 3000, Reason: "partial"})
	require.NoError(t, err)
	assert.NotZero(t, refund.ID)

	var stored payment.Payment
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	assert.Equal(t, int64(3000), stored.RefundedCents)

	var evt outbox.Event
	require.NoError(t, f.db.Where("event_type = ?", outbox.PaymentRefunded).First(&evt).Error)
	var body payment.RefundedEvent
	require.NoError(t, evt.Decode(&body))
	assert.Equal(t, int64(2550), body.EarningsReversalCents)
	assert.False(t, body.FullyRefunded)

	_, err = f.svc.Refund(ctx, 1, payment.RefundInput{PaymentID: p.ID, AmountCents: 6001})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Refund(ctx, 1, payment.RefundInput{PaymentID: p.ID, AmountCents: 6000})
	require.NoError(t, err)
	assert.Len(t, f.gateway.Refunds, 2)
}

func TestRefundRequiresSucceededPayment(t *testing.T) {
	f := setupTestService(t)
	p := f.seedPayment(t, payment.StatusProcessing, "pi_proc")

	_, err := f.svc.Refund(context.Background(), 1, payment.RefundInput{PaymentID: p.ID, AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.Refund(context.Background(), 1, payment.RefundInput{PaymentID: 999, AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := setupTestService(t)
	f.seedPayment(t, payment.StatusProcessing, "pi_hook")
	body := intentEvent(payment.WebhookPaymentSucceeded, "pi_hook")

	err := f.svc.HandleWebhook(context.Background(), body, signedHeader(body, "wrong-secret", time.Now()))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	err = f.svc.HandleWebhook(context.Background(), body, "")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	var stored payment.Payment
	require.NoError(t, f.db.Where("gateway_payment_id = ?", "pi_hook").First(&stored).Error)
	assert.Equal(t, payment.StatusProcessing, stored.Status)
}

func TestWebhookSettlesProcessingPaymentOnce(t *testing.T) {
	f := setupTestService(t)
	f.seedPayment(t, payment.StatusProcessing, "pi_hook")
	body := intentEvent(payment.WebhookPaymentSucceeded, "pi_hook")

	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signedHeader(body, webhookSecret, time.Now())))
	}

	var stored payment.Payment
	require.NoError(t, f.db.Where("gateway_payment_id = ?", "pi_hook").First(&stored).Error)
	assert.Equal(t, payment.StatusSucceeded, stored.Status)
	assert.Equal(t, int64(1), countEvents(t, f.db, outbox.PaymentCompleted))
}

func TestWebhookUnknownPaymentIsAcknowledged(t *testing.T) {
	f := setupTestService(t)
	body := intentEvent(payment.WebhookPaymentFailed, "pi_unknown")
	assert.NoError(t, f.svc.HandleWebhook(context.Background(), body, signedHeader(body, webhookSecret, time.Now())))
}

func TestGetStatusOwnershipAndRefresh(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	f.gateway.ChargeStatus = payment.StatusProcessing
	res, err := f.svc.Charge(ctx, payment.ChargeRequest{AmountCents: 9000, SourceID: "pm_card", IdempotencyKey: "k1"})
	require.NoError(t, err)
	p := f.seedPayment(t, payment.StatusProcessing, res.GatewayPaymentID)

	_, err = f.svc.GetStatus(ctx, 99, jwt.RoleClient, p.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.GetStatus(ctx, 10, jwt.RoleClient, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, got.Status)

	f.gateway.Settle(res.GatewayPaymentID, payment.StatusSucceeded)
	got, err = f.svc.GetStatus(ctx, 20, jwt.RoleCoach, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, got.Status)

	got, err = f.svc.GetStatus(ctx, 1, jwt.RoleAdmin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, got.Status)
}

func TestWebhookHandlerReturns401OnBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := setupTestService(t)

	router := gin.New()
	group := router.Group("/api/v1/bookings")
	payment.NewHandler(f.svc, nil).RegisterWebhookRoutes(group, func(c *gin.Context) { c.Next() })

	body := intentEvent(payment.WebhookPaymentSucceeded, "pi_x")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signedHeader(body, "nope", time.Now()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SIGNATURE")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signedHeader(body, webhookSecret, time.Now()))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
