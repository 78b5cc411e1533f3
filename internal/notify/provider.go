package notify

import "context"

// Provider delivers a rendered notification. Implementations live at the
// boundary; the engine only enqueues intents.
type Provider interface {
	Send(ctx context.Context, to string, template string, data map[string]any) error
}

type NoOpProvider struct{}

func (NoOpProvider) Send(ctx context.Context, to string, template string, data map[string]any) error {
	return nil
}
