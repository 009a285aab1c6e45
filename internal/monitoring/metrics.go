package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the chat server.
// Scraped from the /metrics endpoint on the metrics listener.
var (
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "Total number of TCP connections accepted and registered",
	})

	clientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_clients_active",
		Help: "Current number of registered clients (authed or pending)",
	})

	disconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_disconnects_total",
		Help: "Total client removals by reason",
	}, []string{"reason"})

	bannedRejectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_banned_rejects_total",
		Help: "Total connection attempts rejected because the IP is banned",
	})

	messagesBroadcastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_broadcast_total",
		Help: "Total messages fanned out to peers",
	})

	broadcastRecipientsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_recipients_total",
		Help: "Total per-recipient deliveries across all broadcasts",
	})

	broadcastWriteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_write_errors_total",
		Help: "Total per-recipient write failures during fan-out",
	})

	strikesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_strikes_total",
		Help: "Total IP strikes by reason",
	}, []string{"reason"})

	bansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_bans_total",
		Help: "Total strike-to-ban transitions",
	})

	authFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "Total failed token authentications",
	})

	bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_bytes_received_total",
		Help: "Total bytes read from client sockets",
	})

	bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_bytes_sent_total",
		Help: "Total bytes written to client sockets",
	})

	// System metrics, fed by the gopsutil sampler.
	processCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_process_cpu_percent",
		Help: "Process CPU usage percentage",
	})

	processMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_process_memory_bytes",
		Help: "Process resident set size in bytes",
	})

	goroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_goroutines_active",
		Help: "Current number of goroutines",
	})
)

// Strike reasons. Labels on chat_strikes_total and chat_disconnects_total.
const (
	StrikeReasonRate      = "rate_exceeded"
	StrikeReasonAuth      = "auth_failure"
	StrikeReasonSlowloris = "slowloris"

	DisconnectReasonClientClosed = "client_closed"
	DisconnectReasonReadError    = "read_error"
	DisconnectReasonAuthFailure  = "auth_failure"
	DisconnectReasonBanned       = "banned"
	DisconnectReasonSlowloris    = "slowloris"
	DisconnectReasonShutdown     = "shutdown"
)

func init() {
	prometheus.MustRegister(connectionsTotal)
	prometheus.MustRegister(clientsActive)
	prometheus.MustRegister(disconnectsTotal)
	prometheus.MustRegister(bannedRejectsTotal)
	prometheus.MustRegister(messagesBroadcastTotal)
	prometheus.MustRegister(broadcastRecipientsTotal)
	prometheus.MustRegister(broadcastWriteErrorsTotal)
	prometheus.MustRegister(strikesTotal)
	prometheus.MustRegister(bansTotal)
	prometheus.MustRegister(authFailuresTotal)
	prometheus.MustRegister(bytesReceived)
	prometheus.MustRegister(bytesSent)
	prometheus.MustRegister(processCPUPercent)
	prometheus.MustRegister(processMemoryBytes)
	prometheus.MustRegister(goroutinesActive)
}

// HandleMetrics serves the Prometheus scrape endpoint.
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func IncrementConnections() { connectionsTotal.Inc() }

func SetActiveClients(n int) { clientsActive.Set(float64(n)) }

func IncrementDisconnects(reason string) { disconnectsTotal.WithLabelValues(reason).Inc() }

func IncrementBannedRejects() { bannedRejectsTotal.Inc() }

func IncrementBroadcasts() { messagesBroadcastTotal.Inc() }

func AddBroadcastRecipients(n int) { broadcastRecipientsTotal.Add(float64(n)) }

func IncrementBroadcastWriteErrors() { broadcastWriteErrorsTotal.Inc() }

func IncrementStrikes(reason string) { strikesTotal.WithLabelValues(reason).Inc() }

func IncrementBans() { bansTotal.Inc() }

func IncrementAuthFailures() { authFailuresTotal.Inc() }

func AddBytesReceived(n int) { bytesReceived.Add(float64(n)) }

func AddBytesSent(n int) { bytesSent.Add(float64(n)) }

func SetProcessCPUPercent(pct float64) { processCPUPercent.Set(pct) }

func SetProcessMemoryBytes(b uint64) { processMemoryBytes.Set(float64(b)) }

func SetGoroutines(n int) { goroutinesActive.Set(float64(n)) }
