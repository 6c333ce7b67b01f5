package respond

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
)

// Auditor emits audit events for handler mutations.
type Auditor struct {
	Emitter audit.Emitter
	Logger  *zap.Logger
}

// Record emits one event for caller. A zero caller is recorded as anonymous.
func (a Auditor) Record(r *http.Request, caller authz.Caller, action, targetType string, targetID any, md map[string]any) {
	if a.Emitter == nil {
		return
	}
	event := audit.BuildEvent(caller.AccountID, caller.Username, action, targetType, targetID)
	if md != nil {
		event = audit.WithMetadata(event, md)
	}
	audit.Record(r.Context(), a.Emitter, a.Logger, audit.BuildEventFromRequest(event, r))
}
