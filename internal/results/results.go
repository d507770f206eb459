// Package results persists evaluation records: checkpoint id to metric values.
package results

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Metric names, in the order they are computed.
const (
	MetricAccuracy         = "CLIP accuracy"
	MetricClipScore        = "CLIP score"
	MetricGrdClipScore     = "Grd CLIP score"
	MetricClipImageScore   = "CLIP Image score"
	MetricLPIPS            = "LPIP score"
	MetricPersonalSim      = "Personal Sim"
	MetricCompatibility    = "Compatibility"
	MetricGrdCompatibility = "Grd Compatibility"
)

// MetricNames lists every metric in computation order.
var MetricNames = []string{
	MetricAccuracy,
	MetricClipScore,
	MetricGrdClipScore,
	MetricClipImageScore,
	MetricLPIPS,
	MetricPersonalSim,
	MetricCompatibility,
	MetricGrdCompatibility,
}

// Record maps a checkpoint id to its metric values.
type Record map[int]map[string]float64

// Has reports whether the checkpoint has any recorded metric.
func (r Record) Has(ckpt int) bool {
	_, ok := r[ckpt]
	return ok
}

// HasMetric reports whether the checkpoint already holds the metric.
func (r Record) HasMetric(ckpt int, name string) bool {
	_, ok := r[ckpt][name]
	return ok
}

// Set stores a metric value.
func (r Record) Set(ckpt int, name string, value float64) {
	m, ok := r[ckpt]
	if !ok {
		m = make(map[string]float64)
		r[ckpt] = m
	}
	m[name] = value
}

// Checkpoints returns the recorded checkpoint ids in ascending order.
func (r Record) Checkpoints() []int {
	ids := make([]int, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Store persists an evaluation record.
type Store interface {
	// Load returns the current record. A store with nothing persisted yet
	// returns an empty record.
	Load(ctx context.Context) (Record, error)
	// SaveMetrics durably records metrics of one checkpoint in a single
	// write: either all of values are persisted or none.
	SaveMetrics(ctx context.Context, ckpt int, values map[string]float64) error
	Close() error
}

// Open returns the store selected by cfg for one eval version and mode.
func Open(ctx context.Context, cfg config.ResultsConfig, evalDir, version, mode string) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(evalDir, cfg.FileName), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL, version, mode)
	default:
		return nil, errors.ValidationError("unknown results backend: " + cfg.Backend)
	}
}

// WriteTable prints a record with one row per checkpoint and one column per metric.
func WriteTable(w io.Writer, r Record) error {
	header := append([]string{"ckpt"}, MetricNames...)
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, ckpt := range r.Checkpoints() {
		row := []string{fmt.Sprint(ckpt)}
		for _, name := range MetricNames {
			v, ok := r[ckpt][name]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.2f", v))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}
