package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Encounters records submission and resolution activity.
type Encounters struct {
	submissions metric.Int64Counter
	resolutions metric.Int64Counter
	damage      metric.Int64Histogram
}

// NewEncounters creates the instruments on meter; a nil meter uses the global
// provider. Instrument creation failures are reported to the otel error
// handler and leave that instrument as a no-op.
func NewEncounters(meter metric.Meter) *Encounters {
	if meter == nil {
		meter = otel.Meter("github.com/louisbranch/opsroom/encounters")
	}
	m := &Encounters{}
	var err error
	if m.submissions, err = meter.Int64Counter("opsroom.encounters.submissions",
		metric.WithDescription("Accepted action submissions"),
		metric.WithUnit("{submission}"),
	); err != nil {
		otel.Handle(err)
	}
	if m.resolutions, err = meter.Int64Counter("opsroom.encounters.resolutions",
		metric.WithDescription("Turn resolution requests that returned a result"),
		metric.WithUnit("{resolution}"),
	); err != nil {
		otel.Handle(err)
	}
	if m.damage, err = meter.Int64Histogram("opsroom.encounters.turn_damage",
		metric.WithDescription("Total attack damage dealt per resolved turn"),
		metric.WithUnit("{hp}"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

// Submission counts one accepted submission.
func (m *Encounters) Submission(ctx context.Context, actionType string, dryRun bool) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action_type", actionType),
		attribute.Bool("dry_run", dryRun),
	))
}

// Resolution counts one resolved or replayed turn and, for fresh
// resolutions, records its total damage.
func (m *Encounters) Resolution(ctx context.Context, replayed bool, encounterStatus string, totalDamage int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Bool("replayed", replayed),
		attribute.String("encounter_status", encounterStatus),
	)
	if m.resolutions != nil {
		m.resolutions.Add(ctx, 1, attrs)
	}
	if !replayed && m.damage != nil {
		m.damage.Record(ctx, int64(totalDamage), attrs)
	}
}
