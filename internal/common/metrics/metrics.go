// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery channels.
const (
	ChannelRealtime = "realtime"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
)

var (
	NotificationsClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_claimed_total",
			Help: "Notifications claimed by a dispatch pass",
		},
		[]string{"pipeline"},
	)

	ClaimRacesLost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_claim_races_lost_total",
			Help: "Due notifications another pass claimed first",
		},
		[]string{"pipeline"},
	)

	DeliveriesSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_deliveries_total",
			Help: "Successful deliveries per channel",
		},
		[]string{"pipeline", "channel"},
	)

	DeliveriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivery_failures_total",
			Help: "Failed deliveries per channel",
		},
		[]string{"pipeline", "channel", "error_code"},
	)

	NotificationsMarkedSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_marked_sent_total",
			Help: "Notifications finalized as sent",
		},
		[]string{"pipeline"},
	)

	MarkSentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_mark_sent_failures_total",
			Help: "Notifications left claimed because finalizing failed",
		},
		[]string{"pipeline"},
	)

	StaleClaimsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_stale_claims_released_total",
			Help: "Stuck claims released by the reclaim rule",
		},
		[]string{"pipeline"},
	)

	ClaimsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_claims_released_total",
			Help: "Claimed records handed back unstarted when a cycle hit its deadline",
		},
		[]string{"pipeline"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notifications_cycle_duration_seconds",
			Help: "Duration of one claim-and-deliver cycle in seconds",
		},
		[]string{"pipeline"},
	)

	CyclesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifications_cycles_active",
			Help: "Cycles currently running",
		},
		[]string{"pipeline"},
	)

	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_hub_subscribers",
			Help: "Connected real-time subscribers",
		},
	)

	RelayForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_forwarded_total",
			Help: "Relay requests accepted and emitted",
		},
		[]string{"transport"},
	)

	RelayRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_rejected_total",
			Help: "Relay requests rejected",
		},
		[]string{"transport", "reason"},
	)
)
