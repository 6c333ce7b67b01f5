// Package audit provides audit event emission for agency mutations.
//
// Purpose:
//
//	Every state-changing request (persons, policies, claims, bindings,
//	accounts, credential resets) produces one Event. Events go to Kafka when
//	brokers are configured and to the structured log otherwise.
//
// Dependencies:
//   - github.com/google/uuid: event ids
//   - github.com/segmentio/kafka-go: KafkaEmitter
//   - go.uber.org/zap: LoggerEmitter and failure logging
//
// Thread Safety:
//   - Emitter implementations are safe for concurrent use
//
// Error Handling:
//   - Emit returns errors for monitoring; Record logs them and never fails
//     the caller's request
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one audited mutation.
type Event struct {
	EventID    uuid.UUID      `json:"event_id"`
	ActorID    int64          `json:"actor_id"`
	ActorName  string         `json:"actor_name,omitempty"`
	ActorType  string         `json:"actor_type"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Hash       string         `json:"hash"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Emitter delivers audit events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter writes events to the structured log.
type LoggerEmitter struct {
	logger *zap.Logger
}

// NewLoggerEmitter creates a logger-based audit emitter.
func NewLoggerEmitter(logger *zap.Logger) *LoggerEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggerEmitter{logger: logger.With(zap.String("component", "audit"))}
}

// Emit logs the event. It never fails.
func (e *LoggerEmitter) Emit(_ context.Context, event Event) error {
	e.logger.Info("audit event",
		zap.String("event_id", event.EventID.String()),
		zap.Int64("actor_id", event.ActorID),
		zap.String("actor_type", event.ActorType),
		zap.String("action", event.Action),
		zap.String("target_type", event.TargetType),
		zap.String("target_id", event.TargetID),
		zap.String("request_id", event.RequestID),
		zap.Any("metadata", event.Metadata),
		zap.String("hash", event.Hash),
	)
	return nil
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// NewNoopEmitter creates a no-op audit emitter.
func NewNoopEmitter() *NoopEmitter {
	return &NoopEmitter{}
}

func (e *NoopEmitter) Emit(context.Context, Event) error {
	return nil
}

// BuildEvent constructs an event with a fresh id, timestamp and hash.
func BuildEvent(actorID int64, actorName, action, targetType string, targetID any) Event {
	event := Event{
		EventID:    uuid.New(),
		ActorID:    actorID,
		ActorName:  actorName,
		ActorType:  ActorTypeAccount,
		Action:     action,
		TargetType: targetType,
		TargetID:   formatTarget(targetID),
		CreatedAt:  time.Now().UTC(),
	}
	if actorID == 0 {
		event.ActorType = ActorTypeAnonymous
	}
	event.Hash = computeEventHash(event)
	return event
}

// WithMetadata returns a copy of event carrying md, with the hash recomputed.
func WithMetadata(event Event, md map[string]any) Event {
	event.Metadata = md
	event.Hash = computeEventHash(event)
	return event
}

// BuildEventFromRequest enriches an event with HTTP request metadata.
func BuildEventFromRequest(event Event, r *http.Request) Event {
	event.IPAddress = clientIP(r)
	event.UserAgent = r.Header.Get("User-Agent")
	if event.RequestID == "" {
		event.RequestID = r.Header.Get("X-Request-ID")
	}
	if event.Resource == "" {
		event.Resource = r.Method + " " + r.URL.Path
	}
	event.Hash = computeEventHash(event)
	return event
}

// Record emits event and logs a failure instead of returning it.
func Record(ctx context.Context, emitter Emitter, logger *zap.Logger, event Event) {
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.Warn("audit emit failed",
			zap.String("action", event.Action),
			zap.String("event_id", event.EventID.String()),
			zap.Error(err),
		)
	}
}

func formatTarget(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case *int64:
		if v == nil {
			return ""
		}
		return strconv.FormatInt(*v, 10)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// computeEventHash hashes the JSON payload with the hash field cleared.
func computeEventHash(event Event) string {
	event.Hash = ""
	payload, err := json.Marshal(event)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", event))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Actions.
const (
	ActionPersonCreate     = "person.create"
	ActionPersonUpdate     = "person.update"
	ActionPersonDelete     = "person.delete"
	ActionPolicyCreate     = "policy.create"
	ActionPolicyUpdate     = "policy.update"
	ActionPolicyDelete     = "policy.delete"
	ActionBindingAdd       = "binding.add"
	ActionBindingRemove    = "binding.remove"
	ActionClaimCreate      = "claim.create"
	ActionClaimUpdate      = "claim.update"
	ActionClaimDelete      = "claim.delete"
	ActionAccountRegister  = "account.register"
	ActionProfileSave      = "profile.save"
	ActionCredentialForgot = "credential.forgot"
	ActionCredentialReset  = "credential.reset"
	ActionReportExport     = "report.export"
)

// Target types.
const (
	TargetTypePerson  = "person"
	TargetTypePolicy  = "policy"
	TargetTypeClaim   = "claim"
	TargetTypeAccount = "account"
	TargetTypeReport  = "report"
)

// Actor types.
const (
	ActorTypeAccount   = "account"
	ActorTypeAnonymous = "anonymous"
	ActorTypeSystem    = "system"
)
