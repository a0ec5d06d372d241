package session

import (
	"context"
	"time"

	"github.com/tradegate/tradegate/internal/model"
)

// MonitorSuspiciousActivity records one flagged event for an IP. When the
// count of flagged events within the trailing window reaches the
// configured threshold the record latches to blocked exactly once,
// emitting a single SECURITY_IP_BLOCKED event and a realtime alert.
func (m *Manager) MonitorSuspiciousActivity(ctx context.Context, ip, eventType, accountID string) model.SuspiciousIPRecord {
	now := time.Now()
	cutoff := now.Add(-m.abuseCfg.Window)

	m.suspiciousMu.Lock()
	rec, ok := m.suspicious[ip]
	if !ok {
		rec = &model.SuspiciousIPRecord{IP: ip}
		m.suspicious[ip] = rec
	}

	rec.Attempts++
	rec.LastAttemptAt = now
	rec.History = append(rec.History, model.SuspiciousEvent{
		EventType: eventType,
		AccountID: accountID,
		Timestamp: now,
	})
	if size := m.abuseCfg.HistorySize; size > 0 && len(rec.History) > size {
		rec.History = rec.History[len(rec.History)-size:]
	}

	// The latch fires once: check-then-set happens under the same lock,
	// so concurrent requests for the same IP cannot double-trigger.
	latched := false
	if !rec.Blocked && rec.RecentCount(cutoff) >= m.abuseCfg.BlockThreshold {
		rec.Blocked = true
		blockedAt := now
		rec.BlockedAt = &blockedAt
		latched = true
	}

	snapshot := copyRecord(rec)
	m.suspiciousMu.Unlock()

	if latched {
		m.log.Warn().Str("ip", ip).Int("attempts", snapshot.Attempts).Msg("suspicious IP blocked")
		m.sink.Record(ctx, model.AuditSecurityIPBlocked, accountID, ip, "", map[string]interface{}{
			"attempts":   snapshot.Attempts,
			"last_event": eventType,
		})
		m.notifySecurity("ip_blocked", map[string]interface{}{
			"ip":       ip,
			"attempts": snapshot.Attempts,
		})
	}

	return snapshot
}

// IsIPBlocked reports whether the IP is currently blocked.
func (m *Manager) IsIPBlocked(ip string) bool {
	m.suspiciousMu.Lock()
	defer m.suspiciousMu.Unlock()
	rec, ok := m.suspicious[ip]
	return ok && rec.Blocked
}

// UnblockIP clears the block on an IP by explicit administrative override.
// The record itself is kept.
func (m *Manager) UnblockIP(ctx context.Context, ip, actingAdminID string) error {
	m.suspiciousMu.Lock()
	rec, ok := m.suspicious[ip]
	if !ok || !rec.Blocked {
		m.suspiciousMu.Unlock()
		return ErrIPNotBlocked
	}
	rec.Blocked = false
	rec.BlockedAt = nil
	m.suspiciousMu.Unlock()

	m.sink.Record(ctx, model.AuditSecurityIPUnblocked, actingAdminID, ip, "", map[string]interface{}{
		"unblocked_ip": ip,
	})
	m.log.Info().Str("ip", ip).Str("admin_id", actingAdminID).Msg("IP unblocked")
	return nil
}

// SuspiciousIPs returns copies of all tracked IP records.
func (m *Manager) SuspiciousIPs() []model.SuspiciousIPRecord {
	m.suspiciousMu.Lock()
	defer m.suspiciousMu.Unlock()
	out := make([]model.SuspiciousIPRecord, 0, len(m.suspicious))
	for _, rec := range m.suspicious {
		out = append(out, copyRecord(rec))
	}
	return out
}

func (m *Manager) notifySecurity(event string, data map[string]interface{}) {
	m.notifierMu.RLock()
	n := m.notifier
	m.notifierMu.RUnlock()
	if n != nil {
		n.SecurityAlert(event, data)
	}
}

func copyRecord(rec *model.SuspiciousIPRecord) model.SuspiciousIPRecord {
	snapshot := *rec
	snapshot.History = append([]model.SuspiciousEvent(nil), rec.History...)
	if rec.BlockedAt != nil {
		t := *rec.BlockedAt
		snapshot.BlockedAt = &t
	}
	return snapshot
}
