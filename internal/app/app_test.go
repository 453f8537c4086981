package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coachbook/internal/config"
	"coachbook/internal/pkg/locker"
	"coachbook/internal/sweep"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                    "dev",
		DatabaseURL:               "file:app_container?mode=memory&cache=shared",
		Currency:                  "USD",
		PlatformFeePercent:        15,
		BookingRequestTTL:         24 * time.Hour,
		PaymentWindow:             2 * time.Hour,
		InvoiceDueDays:            14,
		SweepRecurringCron:        "0 6 * * *",
		SweepOverdueCron:          "0 7 * * *",
		SweepExpirationCron:       "*/10 * * * *",
		SweepCleanupCron:          "0 3 * * *",
		NotificationRetentionDays: 90,
		OutboxBatchSize:           50,
		OutboxMaxAttempts:         10,
	}
}

func TestNewWithoutOptionalBackends(t *testing.T) {
	c, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Migrate())

	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Reminders)
	assert.Nil(t, c.Publisher)
	assert.IsType(t, locker.Noop{}, c.Locker)
	assert.NotNil(t, c.Bookings)
	assert.NotNil(t, c.Invoices)

	names := make([]string, 0)
	for _, h := range c.RelayHandlers() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"notifications", "wallet_ledger", "invoice_refunds"}, names)

	results := c.SweepRunner().RunAll(context.Background())
	for _, job := range []string{sweep.JobRecurring, sweep.JobOverdue, sweep.JobExpiration, sweep.JobCleanup} {
		err, ran := results[job]
		assert.True(t, ran, job)
		assert.NoError(t, err, job)
	}

	n, err := c.Relay().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
