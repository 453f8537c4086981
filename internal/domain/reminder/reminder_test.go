package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/notification"
)

type enqueued struct {
	task      *asynq.Task
	taskID    string
	processAt time.Time
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := enqueued{task: task}
	for _, o := range opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			e.taskID = o.Value().(string)
		case asynq.ProcessAtOpt:
			e.processAt = o.Value().(time.Time)
		}
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[e.taskID] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[e.taskID] = true
	f.tasks = append(f.tasks, e)
	return &asynq.TaskInfo{ID: e.taskID}, nil
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) GetSession(ctx context.Context, id int64) (*booking.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Session), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Create(ctx context.Context, n *notification.Notification) (*notification.Notification, error) {
	args := m.Called(ctx, n)
	return n, args.Error(0)
}

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestScheduleSessionReminders(t *testing.T) {
	q := &fakeEnqueuer{}
	s := NewScheduler(q, nil)
	s.now = func() time.Time { return now }

	start := now.Add(48 * time.Hour)
	require.NoError(t, s.ScheduleSessionReminders(context.Background(), 7, start, 2, 1))
	require.Len(t, q.tasks, 4)
	assert.Equal(t, start.Add(-24*time.Hour), q.tasks[0].processAt)
	assert.Equal(t, start.Add(-time.Hour), q.tasks[3].processAt)

	var p Payload
	require.NoError(t, json.Unmarshal(q.tasks[0].task.Payload(), &p))
	assert.Equal(t, int64(7), p.SessionID)
	assert.Equal(t, int64(2), p.UserID)
	assert.Equal(t, TypeSessionReminder, q.tasks[0].task.Type())

	// same session again is absorbed by task id dedup
	require.NoError(t, s.ScheduleSessionReminders(context.Background(), 7, start, 2, 1))
	assert.Len(t, q.tasks, 4)
}

func TestScheduleSkipsPastLeads(t *testing.T) {
	q := &fakeEnqueuer{}
	s := NewScheduler(q, nil)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ScheduleSessionReminders(context.Background(), 7, now.Add(2*time.Hour), 2))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, now.Add(time.Hour), q.tasks[0].processAt)

	require.NoError(t, s.ScheduleSessionReminders(context.Background(), 8, now.Add(30*time.Minute), 2))
	assert.Len(t, q.tasks, 1)
}

func TestScheduleReportsEnqueueErrors(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis down")}
	s := NewScheduler(q, nil, time.Hour)
	s.now = func() time.Time { return now }

	err := s.ScheduleSessionReminders(context.Background(), 7, now.Add(3*time.Hour), 1, 2)
	assert.ErrorContains(t, err, "redis down")
}

func reminderTask(t *testing.T, p Payload) *asynq.Task {
	t.Helper()
	task, _, err := NewTask(p, now, 3)
	require.NoError(t, err)
	return task
}

func TestProcessTaskNotifies(t *testing.T) {
	start := now.Add(time.Hour)
	sessions := &mockSessions{}
	sessions.On("GetSession", mock.Anything, int64(7)).Return(&booking.Session{
		ID: 7, Status: booking.SessionConfirmed, ScheduledAt: start, SessionType: booking.SessionIndividual,
	}, nil)
	notifier := &mockNotifier{}
	notifier.On("Create", mock.Anything, mock.MatchedBy(func(n *notification.Notification) bool {
		return n.UserID == 2 && n.Type == notification.TypeSessionReminder && n.SourceID != nil
	})).Return(nil).Once()

	h := NewHandler(sessions, notifier, nil)
	err := h.ProcessTask(context.Background(), reminderTask(t, Payload{SessionID: 7, UserID: 2, ScheduledAt: start, Lead: "1h0m0s"}))
	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestProcessTaskSkipsStaleSessions(t *testing.T) {
	start := now.Add(time.Hour)
	sessions := &mockSessions{}
	sessions.On("GetSession", mock.Anything, int64(7)).Return(&booking.Session{ID: 7, Status: booking.SessionCompleted, ScheduledAt: start}, nil)
	sessions.On("GetSession", mock.Anything, int64(8)).Return(nil, booking.ErrSessionNotFound)
	sessions.On("GetSession", mock.Anything, int64(9)).Return(&booking.Session{ID: 9, Status: booking.SessionConfirmed, ScheduledAt: start.Add(time.Hour)}, nil)
	notifier := &mockNotifier{}

	h := NewHandler(sessions, notifier, nil)
	for _, id := range []int64{7, 8, 9} {
		err := h.ProcessTask(context.Background(), reminderTask(t, Payload{SessionID: id, UserID: 2, ScheduledAt: start}))
		assert.NoError(t, err)
	}
	notifier.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProcessTaskBadPayloadSkipsRetry(t *testing.T) {
	h := NewHandler(&mockSessions{}, &mockNotifier{}, nil)
	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeSessionReminder, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
