package locker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopAlwaysAcquires(t *testing.T) {
	var l Locker = Noop{}
	ok, token, err := l.TryLock(context.Background(), "sweep:overdue", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
	assert.NoError(t, l.Unlock(context.Background(), "sweep:overdue", token))
}
