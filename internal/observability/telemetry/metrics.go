package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridfleet_active_charging_sessions",
		Help: "Number of charging transactions currently open",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridfleet_energy_delivered_wh_total",
		Help: "Total energy delivered across closed transactions in Wh",
	})

	// Protocol metrics
	ConnectedChargers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridfleet_connected_chargers",
		Help: "Number of charge points with a live connection",
	})

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridfleet_ocpp_messages_total",
		Help: "Total OCPP frames by action and direction",
	}, []string{"action", "direction"})

	PendingCallTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridfleet_pending_call_timeouts_total",
		Help: "Outbound calls that expired without a reply",
	}, []string{"action"})

	ConnectionRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridfleet_connection_rejections_total",
		Help: "Websocket upgrades rejected before registration",
	}, []string{"reason"})

	DatabaseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridfleet_database_latency_seconds",
		Help:    "Durable-store query latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
