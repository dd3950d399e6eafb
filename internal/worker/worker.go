// Package worker consumes booking lifecycle events and turns them into
// patient notifications. It runs alongside the scheduler in the worker
// process, decoupled from the API server by the event topic.
package worker

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	events "github.com/sgshy1995/sens-server-sub000/internal/platform/kafka"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/notification"
)

// RecipientResolver maps a patient id to a delivery address. Until a user
// directory is wired in, the default resolver hands back the patient id and
// leaves routing to the delivery provider.
type RecipientResolver func(ctx context.Context, patientID string) (string, error)

type Worker struct {
	notifier  *notification.Manager
	recipient RecipientResolver
	log       zerolog.Logger
}

func New(notifier *notification.Manager, recipient RecipientResolver, logger zerolog.Logger) *Worker {
	if recipient == nil {
		recipient = func(_ context.Context, patientID string) (string, error) {
			return patientID, nil
		}
	}
	return &Worker{notifier: notifier, recipient: recipient, log: logger}
}

// Run consumes events until the context is cancelled. Per-message failures
// are logged and skipped; a notification is never worth stalling the
// partition for.
func (w *Worker) Run(ctx context.Context, consumer *events.Consumer) error {
	w.log.Info().Msg("notification worker started")
	return consumer.Consume(ctx, func(ctx context.Context, msg kafkago.Message) error {
		if err := w.HandleMessage(ctx, msg); err != nil {
			w.log.Error().Err(err).Str("key", string(msg.Key)).Msg("event handling failed")
		}
		return nil
	})
}

// HandleMessage dispatches one event to the matching notification template.
// Unknown event types are ignored.
func (w *Worker) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	var ev events.BookingEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return err
	}

	templateID, ok := templateFor(ev.Type)
	if !ok {
		w.log.Debug().Str("type", ev.Type).Msg("no notification for event type")
		return nil
	}

	recipient, err := w.recipient(ctx, ev.PatientID)
	if err != nil {
		return err
	}

	n, err := w.notifier.SendFromTemplate(ctx, templateID, templateData(ev), recipient)
	if err != nil {
		return err
	}
	w.log.Info().
		Str("type", ev.Type).
		Str("booking_id", ev.BookingID).
		Str("template", templateID).
		Str("status", n.Status).
		Msg("notification dispatched")
	return nil
}

func templateFor(eventType string) (string, bool) {
	switch eventType {
	case events.EventBookingCreated:
		return "booking-confirmed", true
	case events.EventBookingRescheduled:
		return "booking-rescheduled", true
	case events.EventBookingCancelled, events.EventSlotCancelled:
		return "booking-cancelled", true
	case events.EventRoomOpened:
		return "room-open", true
	case events.EventSessionCompleted:
		return "session-completed", true
	default:
		return "", false
	}
}

func templateData(ev events.BookingEvent) map[string]string {
	data := map[string]string{
		"patient_name": ev.PatientID,
		"practitioner": ev.PractitionerID,
		"date":         ev.StartTime.Format("2006-01-02"),
		"time":         ev.StartTime.Format("15:04"),
		"reason":       ev.Reason,
		"remaining":    strconv.Itoa(ev.RemainingSessions),
	}
	if ev.Reason == "" {
		data["reason"] = "not given"
	}
	return data
}
