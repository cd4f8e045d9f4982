package metrics

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts order lifecycle activity. A nil *DomainMetrics is a no-op.
type DomainMetrics struct {
	transitions   *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	outbox        *prometheus.CounterVec
}

// NewDomainMetrics registers the lifecycle counters on the provided registerer.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "state_transitions_total",
		Help: "Applied state transitions per entity.",
	}, []string{"entity", "from", "to"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refund attempts by outcome.",
	}, []string{"outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification sends by template and status.",
	}, []string{"template", "status"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox rows handled by the publisher, by topic and outcome.",
	}, []string{"topic", "outcome"})
	reg.MustRegister(transitions, refunds, notifications, outbox)
	return &DomainMetrics{
		transitions:   transitions,
		refunds:       refunds,
		notifications: notifications,
		outbox:        outbox,
	}
}

// ObserveTransition counts one applied transition of entity from -> to.
func (m *DomainMetrics) ObserveTransition(entity, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(entity), normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncRefund counts a refund attempt. Outcomes: recorded, reconciled, processor_failed, not_recorded.
func (m *DomainMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncNotification counts one delivery attempt.
func (m *DomainMetrics) IncNotification(template, status string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(template), normalizeLabel(status)).Inc()
}

// IncOutboxPublish counts one outbox row outcome: published, retry, dead_lettered.
func (m *DomainMetrics) IncOutboxPublish(topic, outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}
