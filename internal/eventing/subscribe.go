package eventing

import (
	"context"
	"log"
)

// Subscribe registers a named consumer. Consumer errors are logged and not
// returned to the publisher, so one failing consumer cannot fail a publish.
func Subscribe(bus EventBus, eventType, consumerName string, handler EventHandler, logger *log.Logger) {
	if bus == nil || handler == nil {
		return
	}
	bus.Subscribe(eventType, WrapHandler(consumerName, handler, logger))
}

// WrapHandler logs and swallows consumer errors.
func WrapHandler(consumerName string, handler EventHandler, logger *log.Logger) EventHandler {
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, event any) error {
		if err := handler(ctx, event); err != nil {
			logger.Printf("eventing consumer error: consumer=%s event=%s id=%s err=%v", consumerName, EventType(event), EventIDFromContext(ctx), err)
		}
		return nil
	}
}
