package redis

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "loket:v1"

func KeyEventSummary(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:event:%s:summary", ns, eventID)
}

func KeyEventAvailability(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:event:%s:availability", ns, eventID)
}

func KeyEventList(limit, offset int) string {
	return fmt.Sprintf("%s:events:list:%d:%d", ns, limit, offset)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
