package diffcache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instrumented counts the operations of the wrapped Store by outcome:
// load hit/miss/error, save ok/error, purge ok/error.
type Instrumented struct {
	next Store
	ops  *prometheus.CounterVec
}

// NewInstrumented wraps next and registers its counter with reg. A nil reg
// leaves the counter unregistered.
func NewInstrumented(next Store, reg prometheus.Registerer) *Instrumented {
	opts := prometheus.CounterOpts{
		Name: "notesync_diffcache_operations_total",
		Help: "Commit diff cache operations by kind and outcome",
	}
	var ops *prometheus.CounterVec
	if reg != nil {
		ops = promauto.With(reg).NewCounterVec(opts, []string{"op", "result"})
	} else {
		ops = prometheus.NewCounterVec(opts, []string{"op", "result"})
	}
	return &Instrumented{next: next, ops: ops}
}

// Counter exposes the counter for one op/result pair.
func (s *Instrumented) Counter(op, result string) prometheus.Counter {
	return s.ops.WithLabelValues(op, result)
}

func (s *Instrumented) Load(ctx context.Context, key Key) ([]string, bool, error) {
	paths, ok, err := s.next.Load(ctx, key)
	switch {
	case err != nil:
		s.ops.WithLabelValues("load", "error").Inc()
	case ok:
		s.ops.WithLabelValues("load", "hit").Inc()
	default:
		s.ops.WithLabelValues("load", "miss").Inc()
	}
	return paths, ok, err
}

func (s *Instrumented) Save(ctx context.Context, key Key, paths []string) error {
	err := s.next.Save(ctx, key, paths)
	s.ops.WithLabelValues("save", outcome(err)).Inc()
	return err
}

func (s *Instrumented) Purge(ctx context.Context, project string) error {
	err := s.next.Purge(ctx, project)
	s.ops.WithLabelValues("purge", outcome(err)).Inc()
	return err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
