package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordGuessSubmitted(t *testing.T) {
	// Reset the counter before test
	GuessesSubmittedTotal.Reset()

	RecordGuessSubmitted("regional")
	RecordGuessSubmitted("regional")
	RecordGuessSubmitted("personal")

	count := testutil.ToFloat64(GuessesSubmittedTotal.WithLabelValues("regional"))
	if count != 2 {
		t.Errorf("Expected regional count = 2, got %f", count)
	}

	count = testutil.ToFloat64(GuessesSubmittedTotal.WithLabelValues("personal"))
	if count != 1 {
		t.Errorf("Expected personal count = 1, got %f", count)
	}
}

func TestRecordAttemptFinalized(t *testing.T) {
	AttemptsFinalizedTotal.Reset()
	GuessesToWin.Reset()

	RecordAttemptFinalized("regional", "won", 3)
	RecordAttemptFinalized("regional", "lost", 5)

	if got := testutil.ToFloat64(AttemptsFinalizedTotal.WithLabelValues("regional", "won")); got != 1 {
		t.Errorf("Expected won count = 1, got %f", got)
	}

	// Only wins feed the guess histogram.
	if got := testutil.CollectAndCount(GuessesToWin); got != 1 {
		t.Errorf("Expected 1 guess histogram series, got %d", got)
	}
}

func TestRecordReconcileSource(t *testing.T) {
	ReconcileSourceTotal.Reset()

	RecordReconcileSource("personal", "local")
	RecordReconcileSource("personal", "remote")
	RecordReconcileSource("personal", "remote")

	if got := testutil.ToFloat64(ReconcileSourceTotal.WithLabelValues("personal", "remote")); got != 2 {
		t.Errorf("Expected remote count = 2, got %f", got)
	}
}

func TestSetOutboxDepth(t *testing.T) {
	SetOutboxDepth(7)

	if got := testutil.ToFloat64(OutboxDepth); got != 7 {
		t.Errorf("Expected outbox depth = 7, got %f", got)
	}

	SetOutboxDepth(0)
	if got := testutil.ToFloat64(OutboxDepth); got != 0 {
		t.Errorf("Expected outbox depth = 0, got %f", got)
	}
}

func TestRecordProtectedDays(t *testing.T) {
	ProtectedDaysTotal.Reset()

	RecordProtectedDays("regional", 3)
	RecordProtectedDays("regional", 0)

	if got := testutil.ToFloat64(ProtectedDaysTotal.WithLabelValues("regional")); got != 3 {
		t.Errorf("Expected 3 protected days, got %f", got)
	}
}

func TestRecordBadgeAwarded(t *testing.T) {
	BadgesAwardedTotal.Reset()

	RecordBadgeAwarded("hole_in_one", "regional", "first")
	RecordBadgeAwarded("hole_in_one", "regional", "repeat")

	if got := testutil.ToFloat64(BadgesAwardedTotal.WithLabelValues("hole_in_one", "regional", "repeat")); got != 1 {
		t.Errorf("Expected 1 repeat award, got %f", got)
	}
}

func TestRecordSchedulerJobRun(t *testing.T) {
	SchedulerJobsRunTotal.Reset()

	RecordSchedulerJobRun("outbox", "success")

	if got := testutil.ToFloat64(SchedulerJobsRunTotal.WithLabelValues("outbox", "success")); got != 1 {
		t.Errorf("Expected 1 run, got %f", got)
	}
	if got := testutil.ToFloat64(SchedulerLastRunTimestamp.WithLabelValues("outbox")); got == 0 {
		t.Error("Expected last run timestamp to be set")
	}
}

func TestObserveSnapshotRefreshDuration(t *testing.T) {
	ObserveSnapshotRefreshDuration(1.5)

	// Verify it doesn't panic
}

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered
	metrics := []prometheus.Collector{
		GuessesSubmittedTotal,
		AttemptsFinalizedTotal,
		GuessesToWin,
		ReconcileSourceTotal,
		RemoteWriteFailuresTotal,
		CreationConflictsTotal,
		FinalizeRejectedTotal,
		OutboxDepth,
		OutboxFlushesTotal,
		ProtectionOffersTotal,
		ProtectedDaysTotal,
		StreakSaversUsedTotal,
		HolidaysActivatedTotal,
		BadgesAwardedTotal,
		BadgeFailuresTotal,
		SnapshotRefreshDuration,
		SchedulerJobsRunTotal,
		HTTPRequestsTotal,
	}

	for i, metric := range metrics {
		if metric == nil {
			t.Errorf("Metric %d is nil", i)
		}
	}
}
