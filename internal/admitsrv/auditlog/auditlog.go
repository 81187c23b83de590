package auditlog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/admitd/admitd/internal/admitsrv/auth/keymanager"
	"github.com/admitd/admitd/internal/admitsrv/checkin"
	"github.com/admitd/admitd/internal/admitsrv/eventbus"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

var (
	ErrAuditLog apperrors.Error = apperrors.New("audit log error")
)

// redactedFields are stripped from every record before it reaches disk. The
// log keeps masked contact forms only; raw attendee PII never persists here
// even if a caller includes it.
var redactedFields = []string{
	"attendee_email",
	"attendee_phone",
}

const (
	logExt        = ".alog"
	flushInterval = 16
	busBufferSize = 256
)

// Log appends admission activity to per-event signed chain files under the
// configured audit log directory.
type Log struct {
	dir     string
	keys    keymanager.KeyManager
	mu      sync.Mutex
	writers map[uuid.UUID]*ChainWriter
	closed  bool
}

// New creates an audit log rooted at dir. An empty dir disables file logging;
// Append becomes a no-op so callers never need to special-case it.
func New(dir string, keys keymanager.KeyManager) *Log {
	return &Log{
		dir:     dir,
		keys:    keys,
		writers: make(map[uuid.UUID]*ChainWriter),
	}
}

// Enabled reports whether records are being written to disk.
func (l *Log) Enabled() bool {
	return l.dir != ""
}

// LogPath returns the audit log file path for an event.
func (l *Log) LogPath(eventID uuid.UUID) string {
	return filepath.Join(l.dir, eventID.String()+logExt)
}

// Append records one audit entry for an event. The record is marshaled,
// scrubbed of raw contact fields, and appended to the event's chain.
func (l *Log) Append(ctx context.Context, eventID uuid.UUID, record any) apperrors.Error {
	if !l.Enabled() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return ErrAuditLog.MsgErr("failed to marshal audit record", err)
	}
	for _, field := range redactedFields {
		data, err = sjson.DeleteBytes(data, field)
		if err != nil {
			return ErrAuditLog.MsgErr("failed to redact audit record", err)
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return ErrAuditLog.MsgErr("failed to decode audit record", err)
	}
	payload["logged_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	writer, apperr := l.writer(ctx, eventID)
	if apperr != nil {
		return apperr
	}
	if err := writer.AddEntry(payload); err != nil {
		return ErrAuditLog.MsgErr("failed to append audit entry", err)
	}
	return nil
}

// writer returns the open chain writer for an event, creating it on first use.
func (l *Log) writer(ctx context.Context, eventID uuid.UUID) (*ChainWriter, apperrors.Error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrAuditLog.Msg("audit log is closed")
	}
	if w, ok := l.writers[eventID]; ok {
		return w, nil
	}

	signingKey, apperr := l.keys.GetActiveKey(ctx)
	if apperr != nil {
		return nil, ErrAuditLog.Err(apperr)
	}
	w, err := NewChainWriter(l.LogPath(eventID), flushInterval, signingKey.PrivateKey)
	if err != nil {
		return nil, ErrAuditLog.MsgErr("failed to open audit log", err)
	}
	l.writers[eventID] = w
	return w, nil
}

// Attach subscribes the audit log to check-in outcomes on the bus and streams
// them to disk until ctx is canceled or the returned stop function is called.
func (l *Log) Attach(ctx context.Context, bus *eventbus.Bus) func() {
	events, unsubscribe := bus.Subscribe("checkin.*", busBufferSize)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Ctx(ctx).Error().Msgf("panic in audit log: %v", r)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				notification, ok := event.Data.(checkin.Notification)
				if !ok {
					continue
				}
				if err := l.Append(ctx, notification.EventID, notification); err != nil {
					log.Ctx(ctx).Error().Err(err).
						Str("event_id", notification.EventID.String()).
						Msg("failed to append audit entry")
				}
			}
		}
	}()
	return unsubscribe
}

// Flush writes buffered entries in every open chain to disk.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writers {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every open chain.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			return err
		}
	}
	l.writers = make(map[uuid.UUID]*ChainWriter)
	return nil
}
