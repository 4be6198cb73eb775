// Package metrics defines the Prometheus collectors of the seating service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feast"

// Registration outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeInvalid  = "invalid"
	OutcomeCapacity = "capacity"
	OutcomeFailed   = "failed"
)

var (
	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		},
		[]string{"outcome"},
	)
	conflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_conflicts_total",
			Help:      "Transactions aborted by a concurrent writer and retried.",
		},
	)
	capacityWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_warnings_total",
			Help:      "Capacity warnings attached to registration results, by level.",
		},
		[]string{"level"},
	)
	checkInsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Successful attendee check-ins.",
		},
	)
	emailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Confirmation email dispatches by result.",
		},
		[]string{"result"},
	)
)

var registerMetrics sync.Once

// Register adds all collectors to reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(registrationsTotal)
		reg.MustRegister(conflictsTotal)
		reg.MustRegister(capacityWarningsTotal)
		reg.MustRegister(checkInsTotal)
		reg.MustRegister(emailsTotal)
	})
}

// RecordRegistration counts one registration attempt.
func RecordRegistration(outcome string) {
	registrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordConflict counts one retried transaction.
func RecordConflict() {
	conflictsTotal.Inc()
}

// RecordCapacityWarning counts one emitted capacity warning.
func RecordCapacityWarning(level string) {
	capacityWarningsTotal.WithLabelValues(level).Inc()
}

// RecordCheckIn counts one check-in.
func RecordCheckIn() {
	checkInsTotal.Inc()
}

// Email dispatch results.
const (
	EmailSent   = "sent"
	EmailQueued = "queued"
	EmailFailed = "failed"
)

// RecordEmail counts one confirmation dispatch by result.
func RecordEmail(result string) {
	emailsTotal.WithLabelValues(result).Inc()
}
