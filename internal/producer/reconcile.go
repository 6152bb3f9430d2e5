package producer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// setIntelligenceState is the single place that writes a terminal state
// onto an Intelligence.
//
// endedAt is set only when it is currently absent, so a retried or
// re-reconciled item keeps its original completion timestamp instead of
// sliding forward every time its state is touched again.
func setIntelligenceState(item *Intelligence, state string, reason any) {
	item.System.State = strings.ToUpper(state)
	if item.System.Producer.EndedAt == nil {
		now := time.Now()
		item.System.Producer.EndedAt = &now
	}
	if reason == nil {
		return
	}
	item.System.FailuresReason = serializeReason(reason)
}

// serializeReason implements a three-way coercion: an error becomes its
// message, any other object becomes its JSON encoding, and anything else
// is coerced to a string.
func serializeReason(reason any) string {
	switch v := reason.(type) {
	case nil:
		return ""
	case error:
		return v.Error()
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

func findByGlobalID(items []Intelligence, globalID string) (Intelligence, bool) {
	for _, item := range items {
		if item.GlobalID == globalID {
			return item, true
		}
	}
	return Intelligence{}, false
}
