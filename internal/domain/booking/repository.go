package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) CreateRequest(ctx context.Context, req *Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) GetRequest(ctx context.Context, id int64) (*Request, error) {
	var req Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *Repository) GetRequestForUpdate(ctx context.Context, id int64) (*Request, error) {
	var req Request
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Transition applies updates only while the request is still in from. It
// returns false when another writer got there first.
func (r *Repository) Transition(ctx context.Context, id int64, from, to Status, at time.Time, updates map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal booking transition %s -> %s", from, to)
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = at

	res := r.db.WithContext(ctx).Model(&Request{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) ListByClient(ctx context.Context, clientID int64, status Status, limit, offset int) ([]Request, int64, error) {
	q := r.db.WithContext(ctx).Model(&Request{}).Where("client_id = ?", clientID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return paginate(q, limit, offset)
}

func (r *Repository) ListPendingForCoach(ctx context.Context, coachID int64, now time.Time, limit, offset int) ([]Request, int64, error) {
	q := r.db.WithContext(ctx).Model(&Request{}).
		Where("coach_id = ? AND status = ? AND expires_at >= ?", coachID, StatusPending, now)
	return paginate(q, limit, offset)
}

func paginate(q *gorm.DB, limit, offset int) ([]Request, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var out []Request
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

func (r *Repository) ListExpiredPending(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Request{}).
		Where("status = ? AND expires_at < ?", StatusPending, now).
		Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// ListLapsedPayments skips requests holding a captured charge; those are
// finalized, never expired.
func (r *Repository) ListLapsedPayments(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Request{}).
		Where("status = ? AND payment_deadline < ?", StatusPaymentRequired, cutoff).
		Where("id NOT IN (?)", r.captured()).
		Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *Repository) captured() *gorm.DB {
	return r.db.Model(&Event{}).Select("booking_request_id").Where("event_type = ?", EventCaptureUnfinalized)
}

// ListUnfinalizedCaptures returns requests still awaiting payment although
// the gateway already took the money.
func (r *Repository) ListUnfinalizedCaptures(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Request{}).
		Where("status = ?", StatusPaymentRequired).
		Where("id IN (?)", r.captured()).
		Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// CapturedCharge returns the most recent unfinalized capture recorded for
// the request, or nil.
func (r *Repository) CapturedCharge(ctx context.Context, requestID int64) (*CapturedCharge, error) {
	var evt Event
	err := r.db.WithContext(ctx).
		Where("booking_request_id = ? AND event_type = ?", requestID, EventCaptureUnfinalized).
		Order("id DESC").Limit(1).Find(&evt).Error
	if err != nil {
		return nil, err
	}
	if evt.ID == 0 {
		return nil, nil
	}
	var c CapturedCharge
	if err := json.Unmarshal([]byte(evt.Details), &c); err != nil {
		return nil, fmt.Errorf("decode captured charge for request %d: %w", requestID, err)
	}
	return &c, nil
}

// ListReminderCandidates returns requests awaiting payment whose deadline
// falls in [from, until] and that have not been reminded yet.
func (r *Repository) ListReminderCandidates(ctx context.Context, from, until time.Time) ([]int64, error) {
	var ids []int64
	reminded := r.db.Model(&Event{}).Select("booking_request_id").
		Where("event_type IN ?", []string{EventPaymentReminder, EventCaptureUnfinalized})
	err := r.db.WithContext(ctx).Model(&Request{}).
		Where("status = ? AND payment_deadline >= ? AND payment_deadline <= ?", StatusPaymentRequired, from, until).
		Where("id NOT IN (?)", reminded).
		Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *Repository) HasEvent(ctx context.Context, requestID int64, eventType string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Event{}).
		Where("booking_request_id = ? AND event_type = ?", requestID, eventType).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) AddEvent(ctx context.Context, requestID int64, eventType string, actor ActorType, actorID int64, details any) error {
	evt := &Event{
		BookingRequestID: requestID,
		EventType:        eventType,
		ActorType:        actor,
	}
	if actorID > 0 {
		evt.ActorID = &actorID
	}
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		evt.Details = string(b)
	}
	return r.db.WithContext(ctx).Create(evt).Error
}

func (r *Repository) ListEvents(ctx context.Context, requestID int64) ([]Event, error) {
	var out []Event
	err := r.db.WithContext(ctx).Where("booking_request_id = ?", requestID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) GetSessionByRequest(ctx context.Context, requestID int64) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).Where("booking_request_id = ?", requestID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetSessionForUpdate(ctx context.Context, id int64) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) CompleteSession(ctx context.Context, id int64, notes *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", id, SessionConfirmed).
		Updates(map[string]any{
			"status":           SessionCompleted,
			"completed_at":     at,
			"completion_notes": notes,
			"updated_at":       at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) SetSessionInvoice(ctx context.Context, id, invoiceID int64) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND invoice_id IS NULL", id).
		Update("invoice_id", invoiceID).Error
}

// ListSessions returns sessions where userID is either party.
func (r *Repository) ListSessions(ctx context.Context, userID int64, status SessionStatus, limit, offset int) ([]Session, int64, error) {
	q := r.db.WithContext(ctx).Model(&Session{}).Where("client_id = ? OR coach_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Session
	err := q.Order("scheduled_at DESC, id DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

func (r *Repository) GetSession(ctx context.Context, id int64) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}
