package internaldefs

import (
	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
)

// CounterDef maps a counter to its exported name.
type CounterDef struct {
	ID   lkcosmetics.MetricID
	Name string
	Help string
}

// HistogramDef maps a latency histogram to its exported name.
type HistogramDef struct {
	ID   lkcosmetics.MetricID
	Name string
	Help string
}

// EventsDroppedName is the counter for session events lost to backpressure.
const (
	EventsDroppedName = "lkconsole_events_dropped_total"
	EventsDroppedHelp = "Session events dropped due to dispatcher backpressure."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: lkcosmetics.MetricLoginSuccess, Name: "lkconsole_login_success_total", Help: "Successful logins."},
	{ID: lkcosmetics.MetricLoginFailure, Name: "lkconsole_login_failure_total", Help: "Failed logins."},
	{ID: lkcosmetics.MetricLogout, Name: "lkconsole_logout_total", Help: "Logouts."},
	{ID: lkcosmetics.MetricLogoutNotifyFailure, Name: "lkconsole_logout_notify_failure_total", Help: "Logouts the backend could not be told about."},
	{ID: lkcosmetics.MetricRefreshSuccess, Name: "lkconsole_refresh_success_total", Help: "Successful access token refreshes."},
	{ID: lkcosmetics.MetricRefreshFailure, Name: "lkconsole_refresh_failure_total", Help: "Rejected or failed access token refreshes."},
	{ID: lkcosmetics.MetricRefreshQueued, Name: "lkconsole_refresh_queued_total", Help: "Requests that waited on an in-flight refresh."},
	{ID: lkcosmetics.MetricRefreshShortcut, Name: "lkconsole_refresh_shortcut_total", Help: "401s answered with a token refreshed by another request."},
	{ID: lkcosmetics.MetricProactiveRefresh, Name: "lkconsole_proactive_refresh_total", Help: "Refreshes started before the access token expired."},
	{ID: lkcosmetics.MetricUnauthorized, Name: "lkconsole_unauthorized_total", Help: "Backend 401 responses seen by the pipeline."},
	{ID: lkcosmetics.MetricRequestRetried, Name: "lkconsole_request_retried_total", Help: "Requests replayed after a refresh."},
	{ID: lkcosmetics.MetricSessionExpired, Name: "lkconsole_session_expired_total", Help: "Sessions torn down after a rejected refresh."},
	{ID: lkcosmetics.MetricInitialize, Name: "lkconsole_initialize_total", Help: "Session initializations."},
	{ID: lkcosmetics.MetricSessionRestored, Name: "lkconsole_session_restored_total", Help: "Sessions restored from the refresh cookie at startup."},
	{ID: lkcosmetics.MetricStorageFailure, Name: "lkconsole_storage_failure_total", Help: "Swallowed credential persistence failures."},
	{ID: lkcosmetics.MetricCSRFFailure, Name: "lkconsole_csrf_failure_total", Help: "Failed CSRF bootstrap requests."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: lkcosmetics.MetricRefreshLatency, Name: "lkconsole_refresh_latency_seconds", Help: "Refresh exchange latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
