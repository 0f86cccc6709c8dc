package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ModelDescriptor describes one prediction backend: a stable identifier,
// the remote endpoint (empty means no remote backend, always synthesize)
// and the static validation accuracy used as the ranking key.
type ModelDescriptor struct {
	Identifier string  `json:"identifier"`
	Endpoint   string  `json:"endpoint,omitempty"`
	Accuracy   float64 `json:"accuracy"`
}

// HasEndpoint reports whether the model has a remote backend configured.
func (d ModelDescriptor) HasEndpoint() bool { return d.Endpoint != "" }

// AccuracyPercent renders the accuracy as a display string, e.g. "99.25%".
func (d ModelDescriptor) AccuracyPercent() string {
	return fmt.Sprintf("%.2f%%", d.Accuracy*100)
}

// Registry is the static model catalog. It is built once at startup and
// read-only afterward; rank order is accuracy descending with ties broken
// by registration order.
type Registry struct {
	ranked []ModelDescriptor
	byID   map[string]ModelDescriptor
}

// New builds a registry from the given models. Input order is the
// registration order used for tie-breaking.
func New(models []ModelDescriptor) *Registry {
	ranked := make([]ModelDescriptor, len(models))
	copy(ranked, models)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Accuracy > ranked[j].Accuracy
	})

	byID := make(map[string]ModelDescriptor, len(ranked))
	for _, m := range ranked {
		byID[m.Identifier] = m
	}

	return &Registry{ranked: ranked, byID: byID}
}

// List returns the models in rank order. The slice is a copy; the registry
// itself is never mutated after New.
func (r *Registry) List() []ModelDescriptor {
	out := make([]ModelDescriptor, len(r.ranked))
	copy(out, r.ranked)
	return out
}

// Get looks up a model by identifier.
func (r *Registry) Get(id string) (ModelDescriptor, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Best returns the highest-accuracy model. ok is false only for an empty
// registry.
func (r *Registry) Best() (ModelDescriptor, bool) {
	if len(r.ranked) == 0 {
		return ModelDescriptor{}, false
	}
	return r.ranked[0], true
}

// IDs returns the registered identifiers in rank order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.ranked))
	for i, m := range r.ranked {
		ids[i] = m.Identifier
	}
	return ids
}

// Size returns the number of registered models.
func (r *Registry) Size() int { return len(r.ranked) }

// defaultCatalog lists the deployed CKD classifier services. Accuracy values
// come from the models' held-out validation runs and are fixed here; they are
// ranking weights, never recomputed at runtime.
var defaultCatalog = []ModelDescriptor{
	{Identifier: "random_forest", Endpoint: "http://localhost:5001/predict", Accuracy: 0.9925},
	{Identifier: "xgboost", Endpoint: "http://localhost:5002/predict", Accuracy: 0.9850},
	{Identifier: "svm", Endpoint: "http://localhost:5003/predict", Accuracy: 0.9775},
	{Identifier: "logistic_regression", Endpoint: "http://localhost:5004/predict", Accuracy: 0.9675},
	{Identifier: "decision_tree", Endpoint: "http://localhost:5005/predict", Accuracy: 0.9575},
}

// Default builds the registry from the built-in catalog with per-model
// endpoint overrides from the environment. MODEL_<ID>_URL replaces the
// endpoint; the literal value "none" clears it, turning the model into a
// synthesize-only entry.
func Default() *Registry {
	models := make([]ModelDescriptor, len(defaultCatalog))
	copy(models, defaultCatalog)

	for i, m := range models {
		envKey := "MODEL_" + strings.ToUpper(m.Identifier) + "_URL"
		if override := os.Getenv(envKey); override != "" {
			if strings.EqualFold(override, "none") {
				models[i].Endpoint = ""
			} else {
				models[i].Endpoint = override
			}
		}
	}

	return New(models)
}
