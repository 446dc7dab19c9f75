package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/eventbus"
)

// Dispatcher turns workflow events into browser push notifications: a
// finished or failed translation and a delivered queued submission are the
// moments a user may have tabbed away from.
type notifier interface {
	SendToAll(ctx context.Context, payload *NotificationPayload)
	SendToUser(ctx context.Context, userID string, payload *NotificationPayload)
}

type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   notifier
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.dispatch(ctx, event)
		}
	}
}

// dispatch routes an event to the user it concerns. Events without a user
// in their metadata fan out to every subscription.
func (d *Dispatcher) dispatch(ctx context.Context, event *eventbus.Event) {
	payload := d.payloadFor(event)
	if payload == nil {
		return
	}
	if userID := event.Metadata["userId"]; userID != "" {
		d.sender.SendToUser(ctx, userID, payload)
		return
	}
	d.sender.SendToAll(ctx, payload)
}

func (d *Dispatcher) payloadFor(event *eventbus.Event) *NotificationPayload {
	switch event.Type {
	case eventbus.EventTranslationCompleted:
		return &NotificationPayload{
			Title: "Translation ready",
			Body:  fmt.Sprintf("A translation for task %s has finished.", event.TaskID),
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ResourceID,
		}
	case eventbus.EventTranslationFailed:
		body := event.Payload
		if body == "" {
			body = fmt.Sprintf("A translation for task %s failed.", event.TaskID)
		}
		return &NotificationPayload{
			Title: "Translation failed",
			Body:  body,
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ResourceID,
		}
	case eventbus.EventSubmissionQueued:
		return &NotificationPayload{
			Title: "Submission queued",
			Body:  fmt.Sprintf("Task %s is queued and will be delivered when the collector is reachable.", event.TaskID),
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ID,
		}
	case eventbus.EventSubmissionSubmitted:
		return &NotificationPayload{
			Title: "Submission delivered",
			Body:  fmt.Sprintf("Task %s has been submitted.", event.TaskID),
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ID,
		}
	default:
		return nil
	}
}
