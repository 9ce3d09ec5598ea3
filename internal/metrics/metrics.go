// Package metrics exposes Prometheus collectors for the booking workflow.
// HTTP traffic metrics live in the middleware package; the collectors here
// count domain events so dashboards can watch the pipeline itself: how many
// transitions each operation performed, how often a committed mutation was
// followed by a failed notification, and what the nightly reminder sweep did.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Transitions counts workflow operations by name and outcome.
	// Outcomes: "ok" (committed, notified), "warning" (committed, user not
	// notified), "rejected" (guard or validation refused it), "error"
	// (store failure).
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightdesk_transitions_total",
			Help: "Workflow transition attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// NotifyFailures counts sends that failed after the store mutation had
	// already committed, by operation. These are the degraded-success cases
	// operators must follow up on by hand.
	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightdesk_notification_failures_total",
			Help: "Failed outward notifications after a committed store mutation.",
		},
		[]string{"operation"},
	)

	// RemindersSent counts reminder messages delivered by the daily sweep.
	RemindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightdesk_reminders_sent_total",
			Help: "Payment reminders delivered by the sweep.",
		},
	)

	// RemindersFailed counts reminder sends that failed; failures are
	// isolated per record and never abort the sweep.
	RemindersFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightdesk_reminders_failed_total",
			Help: "Payment reminder sends that failed.",
		},
	)

	// BotUpdates counts chat updates handled by the bot, by kind
	// ("command", "message", "photo", "callback").
	BotUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightdesk_bot_updates_total",
			Help: "Telegram updates handled by the chat surface, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(Transitions, NotifyFailures, RemindersSent, RemindersFailed, BotUpdates)
}
