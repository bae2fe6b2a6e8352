package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
)

// PrometheusRecorder counts inventory transitions by action and outcome and
// observes how long each took.
type PrometheusRecorder struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_transitions_total",
			Help: "Inventory record transitions by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_transition_duration_seconds",
			Help:    "Time spent committing an inventory transition.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
	}
	for _, c := range []prometheus.Collector{r.transitions, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordTransition(action domain.Action, err error, elapsed time.Duration) {
	r.transitions.WithLabelValues(action.String(), Outcome(err)).Inc()
	r.duration.WithLabelValues(action.String()).Observe(elapsed.Seconds())
}

// Outcome maps a transition error onto a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, service.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "persistence"
	}
}
