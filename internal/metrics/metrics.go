// Package metrics exposes Prometheus instrumentation for the intake bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts inbound webhook deliveries by acknowledgement status.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intakebot",
		Name:      "webhook_events_total",
		Help:      "Inbound webhook events by acknowledgement status.",
	}, []string{"status"})

	// OutboundMessages counts outbound chat messages by delivery outcome.
	OutboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intakebot",
		Name:      "outbound_messages_total",
		Help:      "Outbound chat messages by delivery outcome.",
	}, []string{"outcome"})

	// TicketsCreated counts tickets materialized from completed sessions.
	TicketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intakebot",
		Name:      "tickets_created_total",
		Help:      "Tickets created from completed intake conversations.",
	})

	// TicketFailures counts ticket creation attempts that failed.
	TicketFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intakebot",
		Name:      "ticket_failures_total",
		Help:      "Ticket creation attempts that failed.",
	})

	// ActiveSessionSteps counts state transitions entered, by step.
	ActiveSessionSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intakebot",
		Name:      "session_steps_total",
		Help:      "Conversation step transitions entered, by step.",
	}, []string{"step"})
)
