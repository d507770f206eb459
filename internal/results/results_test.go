package results

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/pkg/errors"
)

func TestRecord(t *testing.T) {
	r := make(Record)
	r.Set(200, MetricAccuracy, 0.5)
	r.Set(100, MetricClipScore, 31.2)
	r.Set(100, MetricAccuracy, 0.25)

	if !r.Has(100) || r.Has(300) {
		t.Error("Has() mismatch")
	}
	if !r.HasMetric(100, MetricClipScore) || r.HasMetric(200, MetricClipScore) {
		t.Error("HasMetric() mismatch")
	}

	got := r.Checkpoints()
	if len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Errorf("Checkpoints() = %v, want [100 200]", got)
	}
}

func TestWriteTable(t *testing.T) {
	r := Record{100: {MetricAccuracy: 0.256}}

	var buf bytes.Buffer
	if err := WriteTable(&buf, r); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "100\t0.26\t-") {
		t.Errorf("row = %q", lines[1])
	}
}

// storeFactories builds every backend against fresh state.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir(), "eval_results_grounding.json")
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), "difashion", "valid")
			if err != nil {
				t.Fatalf("NewRedisStore() error = %v", err)
			}
			return s
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			defer s.Close()

			r, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(r) != 0 {
				t.Fatalf("empty store returned %v", r)
			}

			if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricAccuracy: 0.5}); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricClipScore: 30}); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveMetrics(ctx, 200, map[string]float64{MetricAccuracy: 0.75}); err != nil {
				t.Fatal(err)
			}

			r, err = s.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if r[100][MetricAccuracy] != 0.5 || r[100][MetricClipScore] != 30 || r[200][MetricAccuracy] != 0.75 {
				t.Errorf("Load() = %v", r)
			}
		})
	}
}

func TestStore_SaveMetricsBatch(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			defer s.Close()

			if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricAccuracy: 0.5}); err != nil {
				t.Fatal(err)
			}
			pair := map[string]float64{MetricCompatibility: 0.6, MetricGrdCompatibility: 0.7}
			if err := s.SaveMetrics(ctx, 100, pair); err != nil {
				t.Fatal(err)
			}

			r, err := s.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			want := map[string]float64{MetricAccuracy: 0.5, MetricCompatibility: 0.6, MetricGrdCompatibility: 0.7}
			if len(r[100]) != len(want) {
				t.Fatalf("record = %v, want %v", r[100], want)
			}
			for k, v := range want {
				if r[100][k] != v {
					t.Errorf("%s = %v, want %v", k, r[100][k], v)
				}
			}
		})
	}
}

func TestFileStore_FailedWriteKeepsRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, "results.json")
	if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricAccuracy: 0.5}); err != nil {
		t.Fatal(err)
	}

	// a directory in place of the temp file makes the next write fail
	if err := os.Mkdir(s.Path()+".tmp", 0755); err != nil {
		t.Fatal(err)
	}
	pair := map[string]float64{MetricCompatibility: 0.6, MetricGrdCompatibility: 0.7}
	if err := s.SaveMetrics(ctx, 100, pair); err == nil {
		t.Fatal("expected write error")
	}
	_ = os.Remove(s.Path() + ".tmp")

	r, err := NewFileStore(dir, "results.json").Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.HasMetric(100, MetricCompatibility) || r.HasMetric(100, MetricGrdCompatibility) {
		t.Errorf("partial pair persisted: %v", r)
	}
}

func TestFileStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewFileStore(dir, "results.json")
	if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricLPIPS: 0.4}); err != nil {
		t.Fatal(err)
	}
	if s.Path() != filepath.Join(dir, "results.json") {
		t.Errorf("Path() = %s", s.Path())
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("document not written: %v", err)
	}

	reopened := NewFileStore(dir, "results.json")
	r, err := reopened.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r[100][MetricLPIPS] != 0.4 {
		t.Errorf("reopened record = %v", r)
	}

	// a store that never called Load must not drop what is already on disk
	if err := NewFileStore(dir, "results.json").SaveMetrics(ctx, 200, map[string]float64{MetricLPIPS: 0.3}); err != nil {
		t.Fatal(err)
	}
	r, _ = reopened.Load(ctx)
	if !r.Has(100) || !r.Has(200) {
		t.Errorf("record after second writer = %v", r)
	}
}

func TestFileStore_Malformed(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "results.json"), []byte("[1,"), 0644)

	if _, err := NewFileStore(dir, "results.json").Load(context.Background()); !errors.IsValidation(err) {
		t.Errorf("Load() error = %v, want validation", err)
	}
}

func TestRedisStore_Key(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "difashion", "test")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricPersonalSim: 0.8}); err != nil {
		t.Fatal(err)
	}

	got := mr.HGet("fitbench:results:difashion:test", "100")
	if got != `{"Personal Sim":0.8}` {
		t.Errorf("hash field = %q", got)
	}
}

func TestRedisStore_MalformedField(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	mr.HSet(RedisKey("v", "valid"), "100", "not json")

	s, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "v", "valid")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Load(ctx); !errors.IsValidation(err) {
		t.Errorf("Load() error = %v, want validation", err)
	}
	if err := s.SaveMetrics(ctx, 100, map[string]float64{MetricLPIPS: 1}); !errors.IsValidation(err) {
		t.Errorf("SaveMetrics() error = %v, want validation", err)
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "invalid://url", "v", "valid"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.ResultsConfig{Backend: "file", FileName: "r.json"}, t.TempDir(), "v", "valid")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("Open(file) = %T", s)
	}

	if _, err := Open(ctx, config.ResultsConfig{Backend: "s3"}, "", "v", "valid"); !errors.IsValidation(err) {
		t.Error("expected error for unknown backend")
	}
}
