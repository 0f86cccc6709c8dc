package dispatch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/renalworks/ckd-gateway/internal/analysis"
	apperrors "github.com/renalworks/ckd-gateway/internal/errors"
	"github.com/renalworks/ckd-gateway/internal/resilience"
	"github.com/renalworks/ckd-gateway/internal/types"
)

// CompareAll queries every registered model concurrently and waits for all
// of them to settle. Failures never abort the comparison: a failed remote
// occupies an error slot, an endpoint-less model is synthesized inline, and
// the report always has one entry per registered model.
func (d *Dispatcher) CompareAll(ctx context.Context, record types.FeatureRecord) (types.ComparisonReport, error) {
	models := d.registry.List()
	if len(models) == 0 {
		return nil, apperrors.NewAllBackendsUnavailableError(0)
	}

	// Slots are indexed by registry rank, which is already accuracy
	// descending with registration order breaking ties. Each goroutine owns
	// exactly one slot, so no locking is needed.
	report := make(types.ComparisonReport, len(models))

	var g errgroup.Group
	for i, model := range models {
		report[i] = types.ComparisonEntry{ModelID: model.Identifier}

		if !model.HasEndpoint() {
			outcome := analysis.Estimate(record, model.Identifier)
			report[i].Outcome = &outcome
			continue
		}

		g.Go(func() error {
			raw, err := d.caller.Call(ctx, model.Endpoint, record)
			if err != nil {
				appErr := classifyCallError(model.Identifier, err)
				resilience.RecordError(model.Identifier, appErr)
				report[i].Err = appErr.Msg
				return nil
			}

			resilience.RecordRequest(model.Identifier, true)

			outcome := analysis.Normalize(raw, model.Identifier)
			outcome.UsedFallback = false
			report[i].Outcome = &outcome
			return nil
		})
	}

	// Goroutines always return nil; Wait is purely a barrier.
	_ = g.Wait()

	slog.Info("Comparison settled",
		"models", len(report),
		"failed", report.Failed())
	return report, nil
}
