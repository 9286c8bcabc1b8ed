package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargehub/backend/libs/clock"
	"chargehub/backend/libs/events"
	"chargehub/backend/services/coordinator-service/internal/apperr"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

var idGenerator = uuid.NewString

// emitter publishes domain events off the critical path. Publish errors are logged and
// then deliberately discarded: a state change never fails because the event channel is down.
type emitter struct {
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

func (e emitter) emit(ctx context.Context, topic, eventType string, data any) {
	if e.publisher == nil {
		return
	}
	env := events.NewEnvelope(eventType, e.clock.Now(), data)
	if err := e.publisher.Publish(ctx, topic, env); err != nil {
		e.logger.Warn("event not published",
			zap.String("topic", topic),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

// requireExists fails with a not-found error when the referenced row is missing.
func requireExists(ctx context.Context, lookup repository.Lookup, table, column, value, code string) error {
	if lookup == nil {
		return nil
	}
	ok, err := lookup.Exists(ctx, table, column, value)
	if err != nil {
		return apperr.Internal(err, "check %s %s", table, value)
	}
	if !ok {
		return apperr.NotFound(code, "%s %s does not exist", table, value)
	}
	return nil
}

// storeErr classifies a repository error: missing rows become not-found, the rest internal.
func storeErr(err error, code, what, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(code, "%s %s not found", what, id)
	}
	return apperr.Internal(err, "%s %s", what, id)
}

// requireFields takes name/value pairs and rejects the first blank value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return apperr.Validation(apperr.CodeInvalidInput, "%s is required", pairs[i])
		}
	}
	return nil
}

func orDefault(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.System{}
	}
	return clock.Truncated(c)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
