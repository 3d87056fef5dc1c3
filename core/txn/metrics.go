package txn

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the instrument set every scheduler mode reports into:
// counters for started/handled/aborted transactions, a histogram for
// commit latency, an up-down counter for in-flight concurrency.
// ActiveTransactions is registered but no scheduler in this package
// updates it, so it stays at zero.
type Metrics struct {
	Submitted          metric.Int64Counter
	Committed          metric.Int64Counter
	AbortedContention  metric.Int64Counter
	AbortedProgram     metric.Int64Counter
	CommitLatency      metric.Int64Histogram
	ActiveTransactions metric.Int64UpDownCounter
}

// NewMetrics registers the Processor's instrument set against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	submitted, err := meter.Int64Counter(
		"txnbench.txn.submitted_total",
		metric.WithDescription("Total number of transactions submitted to a Processor."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	committed, err := meter.Int64Counter(
		"txnbench.txn.committed_total",
		metric.WithDescription("Total number of transactions that reached COMMITTED."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	abortedContention, err := meter.Int64Counter(
		"txnbench.txn.aborted_contention_total",
		metric.WithDescription("Total number of contention-induced aborts that were re-enqueued."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	abortedProgram, err := meter.Int64Counter(
		"txnbench.txn.aborted_program_total",
		metric.WithDescription("Total number of transactions that reached terminal ABORTED via program logic."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	commitLatency, err := meter.Int64Histogram(
		"txnbench.txn.commit_latency",
		metric.WithDescription("Wall-clock time from submission to terminal COMMITTED/ABORTED, in microseconds."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	activeTransactions, err := meter.Int64UpDownCounter(
		"txnbench.txn.active",
		metric.WithDescription("Number of transactions currently dispatched to a worker."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Submitted:          submitted,
		Committed:          committed,
		AbortedContention:  abortedContention,
		AbortedProgram:     abortedProgram,
		CommitLatency:      commitLatency,
		ActiveTransactions: activeTransactions,
	}, nil
}

// noopMetrics is used when a Processor is built without an explicit
// Metrics instance, so schedulers never need a nil check.
func noopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// observeCommitLatency records one latency sample, already converted
// to microseconds by the caller, and tolerates a nil Metrics.
func (m *Metrics) observeCommitLatency(ctx context.Context, microseconds int64) {
	if m == nil {
		return
	}
	m.CommitLatency.Record(ctx, microseconds)
}
