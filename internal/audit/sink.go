package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/model"
)

// Recorder is the interface the rest of the system emits security events
// through.
type Recorder interface {
	Record(ctx context.Context, eventType string, accountID, ip, userAgent string, data map[string]interface{})
}

// Store is the persistence contract for audit entries.
type Store interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) error
}

// Sink persists structured security events. Persistence is best-effort:
// a failing store falls back to the process log so audit availability can
// never block an auth decision.
type Sink struct {
	store Store
	log   *logger.Logger
}

// NewSink creates a new audit sink
func NewSink(store Store, log *logger.Logger) *Sink {
	return &Sink{
		store: store,
		log:   log.WithComponent("audit"),
	}
}

// Record writes one audit entry. Severity is derived from the event type.
// An empty accountID is stored as NULL.
func (s *Sink) Record(ctx context.Context, eventType string, accountID, ip, userAgent string, data map[string]interface{}) {
	entry := &model.AuditLogEntry{
		ID:        generateID("aud"),
		EventType: eventType,
		IP:        ip,
		UserAgent: userAgent,
		Severity:  model.SeverityFor(eventType),
		Data:      data,
		CreatedAt: time.Now(),
	}
	if accountID != "" {
		entry.AccountID = &accountID
	}

	if err := s.store.Create(ctx, entry); err != nil {
		// Fallback: the event must still leave a trace somewhere.
		s.log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("account_id", accountID).
			Str("ip", ip).
			Str("severity", string(entry.Severity)).
			Interface("data", data).
			Msg("audit store unavailable, event logged to process log")
		return
	}

	s.log.Debug().
		Str("event_type", eventType).
		Str("severity", string(entry.Severity)).
		Msg("audit event recorded")
}

func generateID(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(prefix) > 0 {
		return prefix + "_" + id[:26]
	}
	return id
}
