package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tenant-service/internal/model"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	writeTimeout   = 5 * time.Second
	publishTimeout = 10 * time.Second
)

// Writer appends audit rows
type Writer interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

// Publisher mirrors persisted audit rows to another channel
type Publisher interface {
	Publish(ctx context.Context, entry *model.AuditLog) error
}

// Meta is the request origin of an audited change
type Meta struct {
	IP        string
	UserAgent string
}

// RequestMeta extracts the client address and user agent of a request
func RequestMeta(c echo.Context) Meta {
	return Meta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// Entry describes one privileged mutation
type Entry struct {
	EntityType string
	EntityID   string
	Action     string
	OldValues  interface{}
	NewValues  interface{}
	ActorID    *uint
	TenantID   *uint
	Meta       Meta
	Reason     string
}

// ForSession fills the actor and tenant of e from verified session claims
func (e Entry) ForSession(claims *jwtutil.SessionClaims) Entry {
	if claims == nil {
		return e
	}
	actorID, tenantID := claims.ActorID, claims.TenantID
	e.ActorID = &actorID
	e.TenantID = &tenantID
	return e
}

// Trail records audit entries on a best-effort basis
type Trail struct {
	writer         Writer
	publisher      Publisher
	publishTimeout time.Duration
	now            func() time.Time
	pending        sync.WaitGroup
}

// Option customizes a Trail
type Option func(*Trail)

// WithPublisher mirrors every persisted entry through p
func WithPublisher(p Publisher) Option {
	return func(t *Trail) {
		t.publisher = p
	}
}

// WithPublishTimeout bounds each background publish
func WithPublishTimeout(d time.Duration) Option {
	return func(t *Trail) {
		t.publishTimeout = d
	}
}

// WithClock overrides the time used for reason timestamps
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		t.now = now
	}
}

// NewTrail creates an audit trail writing through w
func NewTrail(w Writer, opts ...Option) *Trail {
	t := &Trail{writer: w, publishTimeout: publishTimeout, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Log records e. Failures are logged and counted, never returned: the audited
// mutation has already committed.
func (t *Trail) Log(ctx context.Context, e Entry) {
	log := logger.FromCtx(ctx).With(
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
		zap.String("action", e.Action),
	)

	row, err := t.encode(e)
	if err != nil {
		log.Error("Failed to encode audit entry", zap.Error(err))
		prometheus.RecordAuditFailure("encode")
		return
	}

	// the request may already be gone; the row must still be written
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := t.writer.Create(writeCtx, row); err != nil {
		log.Error("Failed to write audit entry", zap.Error(err))
		prometheus.RecordAuditFailure("store")
		return
	}
	prometheus.RecordAuditWrite(e.EntityType, e.Action)

	if t.publisher != nil {
		t.pending.Add(1)
		go t.publish(context.WithoutCancel(ctx), row, log)
	}
}

// publish mirrors row outside the request path
func (t *Trail) publish(ctx context.Context, row *model.AuditLog, log *zap.Logger) {
	defer t.pending.Done()

	ctx, cancel := context.WithTimeout(ctx, t.publishTimeout)
	defer cancel()

	if err := t.publisher.Publish(ctx, row); err != nil {
		log.Warn("Failed to publish audit entry", zap.Uint("audit_id", row.ID), zap.Error(err))
		prometheus.RecordAuditFailure("publish")
	}
}

// Wait blocks until every background publish has finished
func (t *Trail) Wait() {
	t.pending.Wait()
}

func (t *Trail) encode(e Entry) (*model.AuditLog, error) {
	oldValues, err := toJSON(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("old values: %w", err)
	}

	newValues := e.NewValues
	if e.Reason != "" {
		newValues, err = withReason(e.NewValues, e.Reason, t.now())
		if err != nil {
			return nil, fmt.Errorf("new values: %w", err)
		}
	}
	newJSON, err := toJSON(newValues)
	if err != nil {
		return nil, fmt.Errorf("new values: %w", err)
	}

	return &model.AuditLog{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		OldValues:  oldValues,
		NewValues:  newJSON,
		ActorID:    e.ActorID,
		TenantID:   e.TenantID,
		IP:         e.Meta.IP,
		UserAgent:  e.Meta.UserAgent,
	}, nil
}

// withReason embeds reason into the snapshot object. Snapshots that are not
// JSON objects are wrapped as {"value": ...} first.
func withReason(snapshot interface{}, reason string, at time.Time) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if snapshot != nil {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return nil, err
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		if obj, ok := decoded.(map[string]interface{}); ok {
			out = obj
		} else if decoded != nil {
			out["value"] = decoded
		}
	}
	out["change_reason"] = reason
	out["change_reason_recorded_at"] = at.UTC().Format(time.RFC3339)
	return out, nil
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
