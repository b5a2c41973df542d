package work

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/LexiconIndonesia/career-crawler-service/common/redis"
)

// Status of a crawl session.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Hash fields of a session key.
const (
	fieldStatus              = "status"
	fieldRetries             = "retries"
	fieldJobListingsStepDone = "job_listings_step_done"
	fieldUpdatedAt           = "updated_at"
)

// Session is the state a worker keeps for one company between deliveries.
type Session struct {
	Key                 string    `json:"key"`
	Status              Status    `json:"status"`
	Retries             int       `json:"retries"`
	JobListingsStepDone bool      `json:"job_listings_step_done"`
	UpdatedAt           time.Time `json:"updated_at"`
	// Exists is false when no hash was stored for the company.
	Exists bool `json:"exists"`
}

// SessionTracker stores sessions as Redis hashes keyed by prefix and company id.
type SessionTracker struct {
	redis  *redis.RedisClient
	prefix string
	now    func() time.Time
}

func NewSessionTracker(client *redis.RedisClient, prefix string) *SessionTracker {
	return &SessionTracker{redis: client, prefix: prefix, now: time.Now}
}

func (t *SessionTracker) Key(companyID int64) string {
	return t.prefix + strconv.FormatInt(companyID, 10)
}

func (t *SessionTracker) Get(ctx context.Context, companyID int64) (Session, error) {
	key := t.Key(companyID)
	fields, err := t.redis.HGetAll(ctx, key)
	if err != nil {
		return Session{}, fmt.Errorf("reading session %s: %w", key, err)
	}
	s := Session{Key: key, Status: StatusNew}
	if len(fields) == 0 {
		return s, nil
	}
	s.Exists = true
	if v := fields[fieldStatus]; v != "" {
		s.Status = Status(v)
	}
	s.Retries, _ = strconv.Atoi(fields[fieldRetries])
	s.JobListingsStepDone, _ = strconv.ParseBool(fields[fieldJobListingsStepDone])
	if ts, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64); err == nil {
		s.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return s, nil
}

// Start marks the session in progress, creating it when missing.
func (t *SessionTracker) Start(ctx context.Context, companyID int64) error {
	key := t.Key(companyID)
	if _, err := t.redis.HSetNX(ctx, key, fieldRetries, 0); err != nil {
		return fmt.Errorf("initialising session %s: %w", key, err)
	}
	if _, err := t.redis.HSetNX(ctx, key, fieldJobListingsStepDone, "false"); err != nil {
		return fmt.Errorf("initialising session %s: %w", key, err)
	}
	return t.setStatus(ctx, key, StatusInProgress)
}

// Done marks the session finished. The next session of the company starts
// with discovery again.
func (t *SessionTracker) Done(ctx context.Context, companyID int64) error {
	key := t.Key(companyID)
	err := t.redis.HSet(ctx, key, map[string]any{
		fieldStatus:              string(StatusDone),
		fieldJobListingsStepDone: "false",
		fieldUpdatedAt:           t.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("setting status of %s to %s: %w", key, StatusDone, err)
	}
	return nil
}

// Fail marks the session failed and returns the retry count after incrementing it.
func (t *SessionTracker) Fail(ctx context.Context, companyID int64) (int, error) {
	key := t.Key(companyID)
	if err := t.setStatus(ctx, key, StatusFailed); err != nil {
		return 0, err
	}
	n, err := t.redis.HIncrBy(ctx, key, fieldRetries, 1)
	if err != nil {
		return 0, fmt.Errorf("incrementing retries of %s: %w", key, err)
	}
	return int(n), nil
}

// MarkJobListingsDone records that discovery results were persisted.
func (t *SessionTracker) MarkJobListingsDone(ctx context.Context, companyID int64) error {
	key := t.Key(companyID)
	err := t.redis.HSet(ctx, key, map[string]any{
		fieldJobListingsStepDone: "true",
		fieldUpdatedAt:           t.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("updating session %s: %w", key, err)
	}
	return nil
}

func (t *SessionTracker) Delete(ctx context.Context, companyID int64) error {
	key := t.Key(companyID)
	if err := t.redis.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting session %s: %w", key, err)
	}
	return nil
}

func (t *SessionTracker) setStatus(ctx context.Context, key string, status Status) error {
	err := t.redis.HSet(ctx, key, map[string]any{
		fieldStatus:    string(status),
		fieldUpdatedAt: t.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("setting status of %s to %s: %w", key, status, err)
	}
	return nil
}
