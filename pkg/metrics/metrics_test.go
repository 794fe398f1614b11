package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithRegisterer(registry),
			WithNamespace("t"),
			WithSubsystem("s"),
			WithEnvironment("test"),
			WithLatencyBuckets(1, 10),
		)

		Convey("Instruments are registered under the configured names", func() {
			m.comparisonsServed.WithLabelValues("default").Inc()
			m.selections.WithLabelValues("true").Add(2)

			So(testutil.ToFloat64(m.comparisonsServed.WithLabelValues("default")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.selections.WithLabelValues("true")), ShouldEqual, 2)

			families, err := registry.Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "t_s_comparisons_served_total")
		})

		Convey("A second manager on the same registry panics on duplicate registration", func() {
			So(func() { NewManager(WithRegisterer(registry), WithNamespace("t"), WithSubsystem("s")) }, ShouldPanic)
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Global helpers record on the shared registry", t, func() {
		before := testutil.ToFloat64(globalManager.flushErrors)
		RecordFlushError()
		So(testutil.ToFloat64(globalManager.flushErrors), ShouldEqual, before+1)

		So(func() {
			RecordComparisonServed("firstVisit")
			RecordBatchSelected("banded")
			RecordSelection(false)
			RecordSelectionLatency(1.5)
			RecordStreak(4)
			RecordStatsSubmission()
			RecordStatsDuplicate()
			RecordProfileUpdates(10)
			RecordFlushLatency(3)
			RecordMissingAsset("image-error")
			RecordStoreLatency("all", 0.2)
			UpdateProfilesTotal(12)
			RecordCacheLookup("hit")
			RecordPrefetch("used")
			RecordHTTPRequest("comparison", "GET", "200")
			RecordHTTPRequestDuration("comparison", "GET", "200", 4)
			UpdateQueueSize(1)
			UpdateQueueCapacity(64)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			UpdateWorkerActiveCount(2)
			RecordWorkerProcessingLatency(1)
			RecordWorkerError()
			RecordErrorByComponent("store", "timeout")
			RecordErrorByEndpoint("stats", "POST", "invalid")
			UpdateSystemMemoryUsage(1024)
			UpdateSystemGoroutineCount(8)
		}, ShouldNotPanic)

		So(GetRegistry(), ShouldNotBeNil)
	})
}
