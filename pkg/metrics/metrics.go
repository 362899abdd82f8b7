// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "reservations_total",
		Help:      "Reserve attempts by result (reserved, replayed, insufficient, closed, error).",
	}, []string{"result"})

	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "ledger_reservations_settled_total",
		Help:      "Reservations moved out of RESERVED, by operation (confirm, release, sweep).",
	}, []string{"operation"})

	SagaTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "saga_transitions_total",
		Help:      "Order status transitions applied by the saga, by target status.",
	}, []string{"status"})

	SweeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "sweeper_reservations_total",
		Help:      "Expired reservations handled by the sweeper, by result (released, skipped, failed).",
	}, []string{"result"})

	OutboxEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "outbox_events_total",
		Help:      "Outbox rows handled by the relay, by result (published, failed, parked).",
	}, []string{"result"})

	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fulfillment",
		Name:      "inbound_events_total",
		Help:      "Consumed broker messages, by topic and ack decision (ack, nak, term).",
	}, []string{"topic", "decision"})
)
