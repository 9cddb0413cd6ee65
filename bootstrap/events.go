package bootstrap

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/artpar/entityapi/core/events"
)

// secretKeys are record keys never written to the audit log.
var secretKeys = map[string]bool{
	"password": true,
	"pass":     true,
}

// RegisterEventHandlers subscribes the built-in handlers to the bus.
func RegisterEventHandlers(bus *events.Bus, logger zerolog.Logger) {
	bus.Subscribe("*", auditHandler(logger))
	bus.Subscribe("user.created", userCreatedHandler(logger))

	logger.Debug().Msg("event handlers registered")
}

// auditHandler logs every dispatched operation with the record keys it returned.
func auditHandler(logger zerolog.Logger) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		logger.Info().
			Str("event", event.Name).
			Str("instance", event.InstanceID).
			Strs("keys", recordKeys(event.Record)).
			Msg("audit")
		return nil
	}
}

// userCreatedHandler notes new accounts. The one-time password stays in the
// record returned to the caller.
func userCreatedHandler(logger zerolog.Logger) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		login, _ := event.Record["login"].(string)
		logger.Info().
			Interface("uid", event.Record["uid"]).
			Str("login", login).
			Msg("user account created")
		return nil
	}
}

func recordKeys(record map[string]any) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		if !secretKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
