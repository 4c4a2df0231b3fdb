package eventbus

import (
	"context"
	"time"

	"github.com/dukex/payflow/pkg/events"
	"github.com/dukex/payflow/pkg/models"
)

// Notifier publishes the engine's change announcements on an event bus. Messages are keyed
// by owner so one owner's announcements stay ordered on partitioned transports.
type Notifier struct {
	bus EventBus
	now func() time.Time
}

// NewNotifier creates a notifier publishing on bus.
func NewNotifier(bus EventBus) *Notifier {
	return &Notifier{bus: bus, now: func() time.Time { return time.Now().UTC() }}
}

func (n *Notifier) AccountUpdated(ctx context.Context, owner, account string) error {
	return n.bus.Publish(ctx, owner, events.NewAccountUpdated(n.bus.GenerateID(), owner, account, n.now()))
}

func (n *Notifier) WorkflowChanged(ctx context.Context, workflow *models.Workflow) error {
	return n.bus.Publish(ctx, workflow.Owner, events.NewWorkflowChanged(n.bus.GenerateID(), workflow, n.now()))
}
