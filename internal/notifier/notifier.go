package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"platewatch/internal/components/assert"
	"platewatch/internal/components/chrono"
	"platewatch/internal/components/telemetry"
	"platewatch/internal/plates"
	"platewatch/internal/transport"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultMaxRecords = 20

const (
	report_notifier_load      = "notifier.load"
	report_notifier_save      = "notifier.save"
	report_notifier_unchanged = "notifier.unchanged"
	report_notifier_distance  = "notifier.distance"
	report_notifier_dispatch  = "notifier.dispatch"
	report_notifier_suppress  = "notifier.suppress"
	report_notifier_records   = "notifier.records"
)

var (
	tracer = otel.Tracer("platewatch/internal/notifier")
	meter  = otel.Meter("platewatch/internal/notifier")
)

// Ranker positions a value in the reference list, plates.Index implements it.
type Ranker interface {
	Rank(plate string) (int, bool)
	Gap(target, plate string) (int, bool)
}

type Options struct {
	// Target is the plate the distance is measured against.
	Target string
	// MaxRecords bounds the persisted history, oldest records are dropped.
	MaxRecords int
}

// Outcome describes what a call did, DispatchErr is set when the transport
// failed. A failed dispatch is not an error of the call itself.
type Outcome struct {
	Appended    bool
	Distance    Distance
	Message     string
	Sent        bool
	Suppressed  bool
	DispatchErr error
}

type Notifier struct {
	store     Store
	ranker    Ranker
	transport transport.Transport
	opts      Options
	tel       telemetry.API

	notifications metric.Int64Counter

	// the scrape and notify loops share the store
	mu sync.Mutex
}

func New(store Store, ranker Ranker, tr transport.Transport, opts Options, tel telemetry.API) (*Notifier, error) {
	assert.NotNil(store)
	assert.NotNil(ranker)
	assert.NotNil(tr)
	assert.NotNil(tel)

	if opts.Target == "" {
		opts.Target = plates.DefaultTarget
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}

	notifications, err := meter.Int64Counter(
		"platewatch_notifications_total",
		metric.WithDescription("Notification dispatch attempts by result."),
	)
	if err != nil {
		return nil, err
	}

	return &Notifier{
		store:         store,
		ranker:        ranker,
		transport:     tr,
		opts:          opts,
		tel:           telemetry.NewScopedAPI("notifier", tel),
		notifications: notifications,
	}, nil
}

// RecordAndNotify appends value to the history if it differs from the last
// record and then dispatches the rendered message unless it was already
// sent. An unchanged value does nothing at all.
func (n *Notifier) RecordAndNotify(ctx context.Context, value string, at time.Time) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "RecordAndNotify")
	defer span.End()

	if value == "" {
		return Outcome{}, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	records, err := n.loadRecords(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(records) > 0 && records[len(records)-1].Value == value {
		n.tel.ReportDebug(report_notifier_unchanged, value)
		return Outcome{}, nil
	}

	record := Record{Value: value, Timestamp: chrono.FormatTimestamp(at)}
	records = append(records, record)
	if len(records) > n.opts.MaxRecords {
		records = records[len(records)-n.opts.MaxRecords:]
	}
	err = n.store.SaveRecords(ctx, records)
	if err != nil {
		n.tel.ReportBroken(report_notifier_save, err)
		return Outcome{}, err
	}
	n.tel.ReportCount(report_notifier_records, int64(len(records)))

	out := n.notify(ctx, record)
	out.Appended = true
	return out, nil
}

// NotifyLatest dispatches the message of the newest record under the same
// last sent rule as RecordAndNotify. It does nothing if there is no history.
func (n *Notifier) NotifyLatest(ctx context.Context) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "NotifyLatest")
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()

	records, err := n.loadRecords(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(records) == 0 {
		n.tel.ReportDebug("no records to notify about")
		return Outcome{}, nil
	}
	return n.notify(ctx, records[len(records)-1]), nil
}

// History returns the stored records oldest first.
func (n *Notifier) History(ctx context.Context) ([]Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loadRecords(ctx)
}

// Distance computes rank and gap to the configured target.
func (n *Notifier) Distance(value string) Distance {
	rank, ok := n.ranker.Rank(value)
	if !ok {
		return Distance{}
	}
	gap, ok := n.ranker.Gap(n.opts.Target, value)
	if !ok {
		return Distance{}
	}
	return Distance{Rank: rank, Gap: gap, Known: true}
}

func (n *Notifier) Target() string {
	return n.opts.Target
}

func (n *Notifier) loadRecords(ctx context.Context) ([]Record, error) {
	records, err := n.store.LoadRecords(ctx)
	if errors.Is(err, ErrCorrupt) {
		n.tel.ReportWarning(report_notifier_load, err)
		return nil, nil
	}
	if err != nil {
		n.tel.ReportBroken(report_notifier_load, err)
		return nil, err
	}
	return records, nil
}

func (n *Notifier) notify(ctx context.Context, record Record) Outcome {
	distance := n.Distance(record.Value)
	if !distance.Known {
		n.tel.ReportWarning(report_notifier_distance, "cannot compute distance", record.Value, n.opts.Target)
	}

	out := Outcome{
		Distance: distance,
		Message:  RenderMessage(record, distance, n.opts.Target),
	}

	lastSent, err := n.store.LoadLastSent(ctx)
	if err != nil {
		n.tel.ReportWarning(report_notifier_load, err)
		lastSent = ""
	}
	if out.Message == lastSent {
		n.tel.ReportDebug(report_notifier_suppress, record.Value)
		n.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "suppressed")))
		out.Suppressed = true
		return out
	}

	err = n.transport.Send(ctx, transport.Text(out.Message))
	if err != nil {
		n.tel.ReportBroken(report_notifier_dispatch, err)
		n.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		out.DispatchErr = err
		return out
	}
	n.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "sent")))
	out.Sent = true

	err = n.store.SaveLastSent(ctx, out.Message)
	if err != nil {
		n.tel.ReportBroken(report_notifier_save, err)
	}
	return out
}
