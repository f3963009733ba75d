// ABOUTME: This file exposes courier health as Prometheus metrics.
// ABOUTME: Counters are pushed by the services; gauges refresh from the stores.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"news-courier/models"
	"news-courier/queue"
	"news-courier/repository"
)

// Delivery results recorded in deliveries_total.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultFatal     = "fatal"
	ResultExhausted = "exhausted"
)

// Collector holds the courier's metric instruments. A nil Collector is valid
// and drops every observation, so tests can skip metrics wiring.
type Collector struct {
	ingested           *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	dlqSize            prometheus.Gauge
	checkpointPage     *prometheus.GaugeVec
	checkpointProgress *prometheus.GaugeVec
}

// Sources are the stores the gauge refresh reads from.
type Sources struct {
	Queue       queue.Store
	Letters     queue.DeadLetterStore
	Checkpoints repository.CheckpointStore
}

// NewCollector registers the courier instruments on the given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_articles_ingested_total",
			Help: "Articles processed by the scan pipeline, by upsert outcome.",
		}, []string{"outcome"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_deliveries_total",
			Help: "Delivery attempts by final result.",
		}, []string{"result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions by target state.",
		}, []string{"to"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_delivery_queue_depth",
			Help: "Entries currently waiting in the delivery queue.",
		}),
		dlqSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_dlq_size",
			Help: "Entries currently parked in the dead-letter store.",
		}),
		checkpointPage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courier_checkpoint_page",
			Help: "Current cursor page per scan stage.",
		}, []string{"stage"}),
		checkpointProgress: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courier_checkpoint_last_progress_timestamp",
			Help: "Unix time of the last cursor write per scan stage.",
		}, []string{"stage"}),
	}
}

// ObserveIngest counts one processed article by upsert outcome.
func (c *Collector) ObserveIngest(outcome models.UpsertOutcome) {
	if c == nil {
		return
	}
	c.ingested.WithLabelValues(string(outcome)).Inc()
}

// ObserveDelivery counts one delivery attempt by result.
func (c *Collector) ObserveDelivery(result string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(result).Inc()
}

// ObserveTransition counts one breaker state change.
func (c *Collector) ObserveTransition(to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(to).Inc()
}

// Refresh re-reads the gauge values from the stores. Run on a short interval
// by the metrics job.
func (c *Collector) Refresh(ctx context.Context, src Sources) error {
	if c == nil {
		return nil
	}

	depth, err := src.Queue.Depth(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue depth: %w", err)
	}
	c.queueDepth.Set(float64(depth))

	size, err := src.Letters.Size(ctx)
	if err != nil {
		return fmt.Errorf("failed to read dead-letter size: %w", err)
	}
	c.dlqSize.Set(float64(size))

	checkpoints, err := src.Checkpoints.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for _, cp := range checkpoints {
		c.checkpointPage.WithLabelValues(cp.Stage).Set(float64(cp.CursorPage))
		c.checkpointProgress.WithLabelValues(cp.Stage).Set(float64(cp.UpdatedAt.Unix()))
	}

	return nil
}
