package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/renalworks/ckd-gateway/internal/adapters"
	"github.com/renalworks/ckd-gateway/internal/analysis"
	apperrors "github.com/renalworks/ckd-gateway/internal/errors"
	"github.com/renalworks/ckd-gateway/internal/registry"
	"github.com/renalworks/ckd-gateway/internal/resilience"
	"github.com/renalworks/ckd-gateway/internal/types"
)

// Dispatcher routes a feature record to the most accurate model available,
// falling back down the accuracy ranking on failure. The local estimator is
// the terminal step, so a non-empty registry always yields an outcome.
type Dispatcher struct {
	registry *registry.Registry
	caller   adapters.ModelCaller
}

// NewDispatcher creates a dispatcher over the given registry and call seam
func NewDispatcher(reg *registry.Registry, caller adapters.ModelCaller) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		caller:   caller,
	}
}

// Dispatch attempts models in descending-accuracy order and returns the
// first successful outcome. Attempts are strictly sequential; a model is
// never retried, failure always moves to the next rank. UsedFallback is
// false only when the best model's endpoint answered on the first attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, record types.FeatureRecord) (types.PredictionOutcome, error) {
	models := d.registry.List()
	if len(models) == 0 {
		return types.PredictionOutcome{}, apperrors.NewAllBackendsUnavailableError(0)
	}

	best := models[0]

	// A best model with no endpoint degrades straight to synthesis. Lower
	// ranked remotes are not consulted: they cannot beat the answer the
	// caller asked for.
	if !best.HasEndpoint() {
		slog.Info("Best model has no endpoint, synthesizing locally", "model", best.Identifier)
		return analysis.Estimate(record, best.Identifier), nil
	}

	attempted := 0
	for _, model := range models {
		if !model.HasEndpoint() {
			continue
		}

		raw, err := d.caller.Call(ctx, model.Endpoint, record)
		if err != nil {
			attempted++
			appErr := classifyCallError(model.Identifier, err)
			resilience.RecordError(model.Identifier, appErr)
			slog.Warn("Model call failed, falling back",
				"model", model.Identifier,
				"endpoint", model.Endpoint,
				"attempt", attempted,
				"error", err)
			continue
		}

		resilience.RecordRequest(model.Identifier, true)

		outcome := analysis.Normalize(raw, model.Identifier)
		outcome.UsedFallback = model.Identifier != best.Identifier

		slog.Info("Model call succeeded",
			"model", model.Identifier,
			"label", outcome.Label,
			"used_fallback", outcome.UsedFallback)
		return outcome, nil
	}

	slog.Warn("All remote attempts failed, synthesizing locally",
		"attempted", attempted, "model", best.Identifier)
	return analysis.Estimate(record, best.Identifier), nil
}

// DispatchModel queries exactly one model. Remote failure falls back to the
// synthesized outcome for the same identifier rather than cascading to other
// models; an unknown identifier is the caller's mistake and is rejected.
func (d *Dispatcher) DispatchModel(ctx context.Context, modelID string, record types.FeatureRecord) (types.PredictionOutcome, error) {
	model, ok := d.registry.Get(modelID)
	if !ok {
		return types.PredictionOutcome{}, apperrors.NewUnknownModelError(modelID, d.registry.IDs())
	}

	if !model.HasEndpoint() {
		return analysis.Estimate(record, model.Identifier), nil
	}

	raw, err := d.caller.Call(ctx, model.Endpoint, record)
	if err != nil {
		appErr := classifyCallError(model.Identifier, err)
		resilience.RecordError(model.Identifier, appErr)
		slog.Warn("Model call failed, synthesizing locally",
			"model", model.Identifier, "error", err)
		return analysis.Estimate(record, model.Identifier), nil
	}

	resilience.RecordRequest(model.Identifier, true)

	outcome := analysis.Normalize(raw, model.Identifier)
	outcome.UsedFallback = false
	return outcome, nil
}

// classifyCallError maps a raw call failure onto the error taxonomy. The
// breaker's open-circuit rejection lands in the unreachable class like any
// other transport failure.
func classifyCallError(modelID string, err error) *apperrors.AppError {
	switch {
	case errors.Is(err, adapters.ErrMalformedResponse):
		return apperrors.NewMalformedResponseError(modelID, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError(fmt.Sprintf("model %s timed out", modelID), err)
	default:
		return apperrors.NewRemoteUnreachableError(modelID, err)
	}
}
