// Package reminder schedules and delivers session reminders through asynq.
package reminder

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

const TypeSessionReminder = "session:reminder"

// DefaultLeads are how long before a session reminders fire.
var DefaultLeads = []time.Duration{24 * time.Hour, time.Hour}

type Payload struct {
	SessionID   int64     `json:"session_id"`
	UserID      int64     `json:"user_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Lead        string    `json:"lead"`
}

func taskID(p Payload) string {
	return fmt.Sprintf("session-reminder:%d:%d:%s", p.SessionID, p.UserID, p.Lead)
}

func NewTask(p Payload, fireAt time.Time, maxRetry int) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSessionReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID(taskID(p)),
		asynq.MaxRetry(maxRetry),
	}
	return task, opts, nil
}
