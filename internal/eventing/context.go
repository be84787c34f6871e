package eventing

import "context"

type contextKey string

const contextKeyEventID contextKey = "eventing.event_id"

// WithEventID stores the id of the event being handled in context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, contextKeyEventID, eventID)
}

// EventIDFromContext extracts the event id from context.
func EventIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if eventID, ok := ctx.Value(contextKeyEventID).(string); ok {
		return eventID
	}
	return ""
}
