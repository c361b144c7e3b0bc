package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "relay_"

	resultSuccess = "success"
	resultError   = "error"

	resultFirst     = "first"
	resultOverwrite = "overwrite"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	commandRequests  prometheus.Counter
	commandResults   *prometheus.CounterVec
	commandDelivered prometheus.Counter
	devicePolls      *prometheus.CounterVec
	devicesOnline    prometheus.Gauge

	loginCodeEvents  *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
	credentialEvents *prometheus.CounterVec
	housekeeping     *prometheus.CounterVec
	commandExports   *prometheus.HistogramVec
)

// Init registers relay metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method and status",
			},
			[]string{"method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)

		commandRequests = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_requests_total",
				Help: "Total issued commands",
			},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total submitted command results by outcome",
			},
			[]string{"outcome"},
		)
		commandDelivered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_delivered_total",
				Help: "Total pending commands returned to polling devices, including redeliveries",
			},
		)
		devicePolls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_polls_total",
				Help: "Total device polls by result",
			},
			[]string{"result"},
		)
		devicesOnline = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices_online",
				Help: "Devices with a heartbeat inside the staleness window",
			},
		)

		loginCodeEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "login_code_events_total",
				Help: "Login code lifecycle events",
			},
			[]string{"event"},
		)
		authFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "auth_failures_total",
				Help: "Rejected requests by trust tier and reason code",
			},
			[]string{"tier", "code"},
		)
		credentialEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "credential_events_total",
				Help: "Device credential lifecycle events",
			},
			[]string{"event"},
		)
		housekeeping = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "housekeeping_removed_total",
				Help: "Records removed by scheduled housekeeping by table",
			},
			[]string{"table"},
		)

		commandExports = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "command_export_seconds",
				Help:    "Command export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			httpRequests,
			httpLatency,
			commandRequests,
			commandResults,
			commandDelivered,
			devicePolls,
			devicesOnline,
			loginCodeEvents,
			authFailures,
			credentialEvents,
			housekeeping,
			commandExports,
		)
	})
}

// ObserveHTTP records a served request.
func ObserveHTTP(method string, status int, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method).Observe(duration.Seconds())
	}
}

// IncCommandIssued increments issued command counter.
func IncCommandIssued() {
	if commandRequests != nil {
		commandRequests.Inc()
	}
}

// IncCommandResult counts a result submission; overwrite marks a repeated submission.
func IncCommandResult(overwrite bool) {
	if commandResults == nil {
		return
	}
	if overwrite {
		commandResults.WithLabelValues(resultOverwrite).Inc()
		return
	}
	commandResults.WithLabelValues(resultFirst).Inc()
}

// ObservePoll records a device poll and the number of commands it returned.
func ObservePoll(result string, delivered int) {
	if result == "" {
		result = resultSuccess
	}
	if devicePolls != nil {
		devicePolls.WithLabelValues(result).Inc()
	}
	if commandDelivered != nil && delivered > 0 {
		commandDelivered.Add(float64(delivered))
	}
}

// SetDevicesOnline sets the online device gauge.
func SetDevicesOnline(count int) {
	if devicesOnline != nil {
		devicesOnline.Set(float64(count))
	}
}

// IncLoginCodeEvent increments login code counters.
func IncLoginCodeEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if loginCodeEvents != nil {
		loginCodeEvents.WithLabelValues(event).Inc()
	}
}

// IncAuthFailure increments rejected request counters.
func IncAuthFailure(tier, code string) {
	if code == "" {
		code = "unknown"
	}
	if authFailures != nil {
		authFailures.WithLabelValues(tier, code).Inc()
	}
}

// IncCredentialEvent increments credential lifecycle counters.
func IncCredentialEvent(event string) {
	if credentialEvents != nil {
		credentialEvents.WithLabelValues(event).Inc()
	}
}

// AddHousekeepingRemoved increments housekeeping counters by count.
func AddHousekeepingRemoved(table string, count int) {
	if count <= 0 {
		return
	}
	if housekeeping != nil {
		housekeeping.WithLabelValues(table).Add(float64(count))
	}
}

// ObserveCommandExport records export latency by format and result.
func ObserveCommandExport(format, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if commandExports != nil {
		commandExports.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

// Login code events.
const (
	LoginCodeRequested   = "requested"
	LoginCodeResent      = "resent"
	LoginCodeRateLimited = "rate_limited"
	LoginCodeVerified    = "verified"
	LoginCodeMismatch    = "mismatch"
	LoginCodeExpired     = "expired"
)
