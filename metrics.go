package irc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "irc").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics counts the traffic of one or more connections. A nil *Metrics is
// a valid no-op receiver.
type Metrics struct {
	connections      prometheus.Gauge
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	bytesReceived    prometheus.Counter
	bytesSent        prometheus.Counter
	replyTimeouts    prometheus.Counter
	closes           *prometheus.CounterVec
}

// NewMetrics registers the connection metrics with config.Registry.
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "irc"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "open_connections",
			Help:        "Number of open connections",
			ConstLabels: config.ConstLabels,
		}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_received_total",
			Help:        "Total number of messages received by command",
			ConstLabels: config.ConstLabels,
		}, []string{"command"}),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total number of messages sent by command",
			ConstLabels: config.ConstLabels,
		}, []string{"command"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "received_bytes_total",
			Help:        "Total bytes read from the transport",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sent_bytes_total",
			Help:        "Total bytes written to the transport",
			ConstLabels: config.ConstLabels,
		}),

		replyTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reply_timeouts_total",
			Help:        "Total number of SendAndAwaitReply calls that timed out",
			ConstLabels: config.ConstLabels,
		}),

		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "closes_total",
			Help:        "Total number of closed connections by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
	}
}

func (m *Metrics) opened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) closed(reason CloseReason) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.closes.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) received(n int, messages []*Message) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
	for _, msg := range messages {
		m.messagesReceived.WithLabelValues(commandLabel(msg.Command)).Inc()
	}
}

func (m *Metrics) sent(n int, msg *Message) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
	m.messagesSent.WithLabelValues(commandLabel(msg.Command)).Inc()
}

func (m *Metrics) replyTimedOut() {
	if m == nil {
		return
	}
	m.replyTimeouts.Inc()
}

// otherCommand labels commands outside labeledCommands.
const otherCommand = "other"

// labeledCommands are the commands counted under their own label. Numerics
// are always labeled; anything else a server sends shares otherCommand.
var labeledCommands = map[string]struct{}{
	CommandQuit:           {},
	CommandPassword:       {},
	CommandNick:           {},
	CommandUser:           {},
	CommandJoin:           {},
	CommandPart:           {},
	CommandPrivateMessage: {},
	CommandNotice:         {},
	CommandPing:           {},
	CommandPong:           {},
	CommandCapability:     {},
	"ERROR":               {},
	"MODE":                {},
	"TOPIC":               {},
	"KICK":                {},
	"CLEARCHAT":           {},
	"CLEARMSG":            {},
	"GLOBALUSERSTATE":     {},
	"HOSTTARGET":          {},
	"RECONNECT":           {},
	"ROOMSTATE":           {},
	"USERNOTICE":          {},
	"USERSTATE":           {},
	"WHISPER":             {},
}

func commandLabel(command string) string {
	if len(command) == 3 && isDigit(command[0]) && isDigit(command[1]) && isDigit(command[2]) {
		return command
	}
	if _, ok := labeledCommands[command]; ok {
		return command
	}
	return otherCommand
}
