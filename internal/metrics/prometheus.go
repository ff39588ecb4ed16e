// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the puzzle progress engine.
var (
	// Gameplay.
	GuessesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_guesses_submitted_total",
			Help: "Total number of guesses submitted",
		},
		[]string{"mode"},
	)

	AttemptsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_attempts_finalized_total",
			Help: "Total number of attempts reaching a terminal result",
		},
		[]string{"mode", "result"},
	)

	GuessesToWin = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datestreak_guesses_to_win",
			Help:    "Number of guesses used in won games",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
		[]string{"mode"},
	)

	// Reconciliation and the remote store.
	ReconcileSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_reconcile_source_total",
			Help: "Which source won attempt reconciliation (remote, local, fresh)",
		},
		[]string{"mode", "source"},
	)

	RemoteWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_remote_write_failures_total",
			Help: "Remote attempt store writes that failed and were queued",
		},
		[]string{"mode", "operation"},
	)

	CreationConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_creation_conflicts_total",
			Help: "Concurrent attempt creations resolved by adopting the stored row",
		},
		[]string{"mode"},
	)

	FinalizeRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_finalize_rejected_total",
			Help: "Terminal writes rejected because the stored attempt was already final",
		},
		[]string{"mode"},
	)

	// Outbox.
	OutboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datestreak_outbox_depth",
			Help: "Number of pending remote writes",
		},
	)

	OutboxFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_outbox_flushes_total",
			Help: "Outbox entries processed by status",
		},
		[]string{"status"},
	)

	// Protection.
	ProtectionOffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_protection_offers_total",
			Help: "Protection offers computed on focus",
		},
		[]string{"mode", "offer"},
	)

	ProtectedDaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_protected_days_total",
			Help: "Days marked protected by holiday backfill",
		},
		[]string{"mode"},
	)

	StreakSaversUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_streak_savers_used_total",
			Help: "Streak savers charged after a won rescue",
		},
		[]string{"mode"},
	)

	HolidaysActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_holidays_activated_total",
			Help: "Holiday activations by outcome",
		},
		[]string{"mode", "status"},
	)

	// Badges.
	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_badges_awarded_total",
			Help: "Total badges awarded, including re-earnings",
		},
		[]string{"badge", "mode", "kind"},
	)

	BadgeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datestreak_badge_failures_total",
			Help: "Badge checks that failed and were swallowed",
		},
	)

	// Snapshots and scheduler.
	SnapshotRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datestreak_snapshot_refresh_duration_seconds",
			Help:    "Duration of the snapshot refresh job",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datestreak_scheduler_last_run_timestamp",
			Help: "Timestamp of the last scheduler run",
		},
		[]string{"job"},
	)

	// HTTP.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datestreak_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// RecordGuessSubmitted records a submitted guess.
func RecordGuessSubmitted(mode string) {
	GuessesSubmittedTotal.WithLabelValues(mode).Inc()
}

// RecordAttemptFinalized records a terminal result and, for wins, the guess count.
func RecordAttemptFinalized(mode, result string, guesses int) {
	AttemptsFinalizedTotal.WithLabelValues(mode, result).Inc()
	if result == "won" {
		GuessesToWin.WithLabelValues(mode).Observe(float64(guesses))
	}
}

// RecordReconcileSource records which source won reconciliation.
func RecordReconcileSource(mode, source string) {
	ReconcileSourceTotal.WithLabelValues(mode, source).Inc()
}

// RecordRemoteWriteFailure records a failed remote write.
func RecordRemoteWriteFailure(mode, operation string) {
	RemoteWriteFailuresTotal.WithLabelValues(mode, operation).Inc()
}

// RecordCreationConflict records an adopted concurrent attempt row.
func RecordCreationConflict(mode string) {
	CreationConflictsTotal.WithLabelValues(mode).Inc()
}

// RecordFinalizeRejected records a rejected terminal write.
func RecordFinalizeRejected(mode string) {
	FinalizeRejectedTotal.WithLabelValues(mode).Inc()
}

// SetOutboxDepth sets the number of pending remote writes.
func SetOutboxDepth(n int64) {
	OutboxDepth.Set(float64(n))
}

// RecordOutboxFlush records one processed outbox entry.
func RecordOutboxFlush(status string) {
	OutboxFlushesTotal.WithLabelValues(status).Inc()
}

// RecordProtectionOffer records an evaluated protection offer.
func RecordProtectionOffer(mode, offer string) {
	ProtectionOffersTotal.WithLabelValues(mode, offer).Inc()
}

// RecordProtectedDays adds newly protected days.
func RecordProtectedDays(mode string, n int) {
	ProtectedDaysTotal.WithLabelValues(mode).Add(float64(n))
}

// RecordStreakSaverUsed records a charged streak saver.
func RecordStreakSaverUsed(mode string) {
	StreakSaversUsedTotal.WithLabelValues(mode).Inc()
}

// RecordHolidayActivation records a holiday activation outcome.
func RecordHolidayActivation(mode, status string) {
	HolidaysActivatedTotal.WithLabelValues(mode, status).Inc()
}

// RecordBadgeAwarded records an awarded badge. kind is first or repeat.
func RecordBadgeAwarded(badgeName, mode, kind string) {
	BadgesAwardedTotal.WithLabelValues(badgeName, mode, kind).Inc()
}

// RecordBadgeFailure records a swallowed badge failure.
func RecordBadgeFailure() {
	BadgeFailuresTotal.Inc()
}

// ObserveSnapshotRefreshDuration records how long a refresh run took.
func ObserveSnapshotRefreshDuration(seconds float64) {
	SnapshotRefreshDuration.Observe(seconds)
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
	SchedulerLastRunTimestamp.WithLabelValues(job).Set(float64(time.Now().Unix()))
}

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(route, code string) {
	HTTPRequestsTotal.WithLabelValues(route, code).Inc()
}
