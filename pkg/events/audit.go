package events

import (
	"sort"

	"github.com/rs/zerolog"
)

// Audit logs every event matching prefixes until the returned function is
// called. The returned function blocks until the pending events are logged.
func (b *Broker) Audit(logger zerolog.Logger, prefixes ...string) func() {
	sub := b.Subscribe(prefixes...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub {
			logEvent(logger, event)
		}
	}()
	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}

func logEvent(logger zerolog.Logger, event *Event) {
	keys := make([]string, 0, len(event.Metadata))
	for key := range event.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entry := logger.Info().Str("event", string(event.Type)).Time("at", event.Timestamp)
	for _, key := range keys {
		entry = entry.Str(key, event.Metadata[key])
	}
	entry.Msg(event.Message)
}
