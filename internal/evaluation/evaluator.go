package evaluation

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/fitbench/fitbench/internal/dataset"
	"github.com/fitbench/fitbench/internal/fitb"
	"github.com/fitbench/fitbench/internal/ml"
	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/logger"
	"github.com/fitbench/fitbench/internal/results"
)

// Evaluator orchestrates the grounding evaluation of checkpoints.
type Evaluator struct {
	opts     Options
	names    fitb.Names
	catalog  *dataset.Catalog
	split    *dataset.Split
	store    results.Store
	backends Backends
	sim      ml.SimilarityFunc
	log      *logger.Logger
	out      io.Writer
}

// NewEvaluator creates a new evaluator. Reports are written to out.
func NewEvaluator(
	opts Options,
	names fitb.Names,
	catalog *dataset.Catalog,
	split *dataset.Split,
	store results.Store,
	backends Backends,
	log *logger.Logger,
	out io.Writer,
) (*Evaluator, error) {
	sim, err := ml.Similarity(opts.Similarity)
	if err != nil {
		return nil, err
	}
	switch opts.MissingHistory {
	case "":
		opts.MissingHistory = MissingHistoryDrop
	case MissingHistoryDrop, MissingHistoryNull:
	default:
		return nil, errors.ValidationError("unknown missing-history policy: " + opts.MissingHistory)
	}
	if log == nil {
		log = logger.Discard()
	}
	if out == nil {
		out = io.Discard
	}

	return &Evaluator{
		opts:     opts,
		names:    names,
		catalog:  catalog,
		split:    split,
		store:    store,
		backends: backends,
		sim:      sim,
		log:      log,
		out:      out,
	}, nil
}

// ResolveCheckpoints turns a checkpoint list or "all" into checkpoint ids.
// "all" discovers the generation files of the run in evalDir.
func ResolveCheckpoints(spec, evalDir string, names fitb.Names) ([]int, error) {
	ckpts, err := fitb.ParseCheckpoints(spec)
	if stderrors.Is(err, fitb.ErrDiscover) {
		ckpts, err = names.Discover(evalDir)
		if err != nil {
			return nil, err
		}
		if len(ckpts) == 0 {
			return nil, errors.NotFoundError(fmt.Sprintf("generation outputs of %s in %s", names.Task, evalDir))
		}
		return ckpts, nil
	}
	return ckpts, err
}

// Run evaluates the checkpoints in order. Checkpoints already in the record
// are skipped unless Resume is set, in which case only their missing
// metrics are computed. Any error aborts the run; metrics persisted before
// the error stay in the record.
func (e *Evaluator) Run(ctx context.Context, ckpts []int) (*Summary, error) {
	record, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, ckpt := range ckpts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		log := e.log.WithCheckpoint(ckpt)
		if record.Has(ckpt) && (!e.opts.Resume || e.complete(record, ckpt)) {
			log.Info("Checkpoint already evaluated, skipping")
			summary.Skipped = append(summary.Skipped, ckpt)
			continue
		}

		if err := e.evaluate(ctx, ckpt, record, log); err != nil {
			return summary, err
		}
		summary.Evaluated = append(summary.Evaluated, ckpt)

		if err := WriteReport(e.out, e.opts.Version, ckpt, record[ckpt]); err != nil {
			return summary, err
		}
	}

	e.log.Info("Evaluation finished", "version", e.opts.Version,
		"evaluated", summary.Evaluated, "skipped", summary.Skipped)
	return summary, nil
}

func (e *Evaluator) complete(record results.Record, ckpt int) bool {
	for _, name := range results.MetricNames {
		if !record.HasMetric(ckpt, name) {
			return false
		}
	}
	return true
}

// evaluate computes the missing metrics of one checkpoint, saving each to
// the store and to record as soon as it is known.
func (e *Evaluator) evaluate(ctx context.Context, ckpt int, record results.Record, log *logger.Logger) error {
	gen, hasPreds, err := dataset.LoadGeneration(e.opts.EvalDir, e.names, ckpt)
	if err != nil {
		return err
	}
	if err := dataset.CheckReference(e.opts.EvalDir, e.names); err != nil {
		return err
	}

	if !hasPreds || !gen.HasPredictions() {
		log.Info("Retrieving generated images against candidates")
		if err := e.retrieve(ctx, gen); err != nil {
			return err
		}
		path, err := dataset.SaveGeneration(e.opts.EvalDir, e.names, ckpt, gen)
		if err != nil {
			return err
		}
		log.Debug("Predictions saved", "path", path)
	}

	slots, err := fitb.Slots(gen, e.split.Candidates)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return errors.ValidationError(fmt.Sprintf("checkpoint %d has no blanks to evaluate", ckpt))
	}

	c := &checkpoint{
		id:       ckpt,
		slots:    slots,
		catalog:  e.catalog,
		split:    e.split,
		backends: e.backends,
		sim:      e.sim,
		policy:   e.opts.MissingHistory,
		log:      log,
	}

	for _, m := range metrics {
		missing := e.missing(record, ckpt, m.names)
		if len(missing) == 0 {
			continue
		}

		log.Info("Calculating " + m.names[0])
		values, err := m.compute(ctx, c)
		if err != nil {
			return metricError(ckpt, m.names[0], err)
		}

		// metrics computed together are saved together
		batch := make(map[string]float64, len(m.names))
		for i, name := range m.names {
			if missing[name] {
				batch[name] = values[i]
			}
		}
		if err := e.store.SaveMetrics(ctx, ckpt, batch); err != nil {
			return err
		}
		for name, value := range batch {
			record.Set(ckpt, name, value)
			log.Debug("Metric saved", "metric", name, "value", value)
		}
	}
	return nil
}

func (e *Evaluator) missing(record results.Record, ckpt int, names []string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range names {
		if !record.HasMetric(ckpt, name) {
			out[name] = true
		}
	}
	return out
}

// retrieve fills every outfit's predictions with the candidate whose CLIP
// features best match the generated image.
func (e *Evaluator) retrieve(ctx context.Context, gen fitb.Generation) error {
	type blank struct {
		outfit *fitb.OutfitGeneration
		items  []int
	}
	var (
		paths  []string
		blanks []blank
	)
	err := gen.Each(func(uid, oid int, o *fitb.OutfitGeneration) error {
		if len(o.ImagePaths) != len(o.Cates) {
			return errors.ValidationError(fmt.Sprintf(
				"user %d outfit %d: %d generated images for %d categories", uid, oid, len(o.ImagePaths), len(o.Cates)))
		}
		items, ok := e.split.Candidates.Lookup(uid, oid)
		if !ok {
			return errors.NotFoundError(fmt.Sprintf("candidates of user %d outfit %d", uid, oid))
		}
		o.Images = make([]int, 0, len(o.ImagePaths))
		for _, p := range o.ImagePaths {
			paths = append(paths, p)
			blanks = append(blanks, blank{outfit: o, items: items})
		}
		return nil
	})
	if err != nil {
		return err
	}

	enc, err := e.backends.ImageEmbedder()
	if err != nil {
		return err
	}
	embs, err := enc.EmbedImages(ctx, paths)
	if err != nil {
		return err
	}
	if len(embs) != len(blanks) {
		return errors.InternalError(fmt.Sprintf("%d embeddings for %d generated images", len(embs), len(blanks)), nil)
	}

	for i, b := range blanks {
		feats, err := e.catalog.Features.Rows(b.items)
		if err != nil {
			return err
		}
		b.outfit.Images = append(b.outfit.Images, ml.Argmax(e.sim, embs[i], feats))
	}
	return nil
}

// metricError names the failed metric, keeping the cause's error code.
func metricError(ckpt int, name string, err error) error {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.CodeMLError
	}
	return errors.Wrap(code, fmt.Sprintf("checkpoint %d: %s", ckpt, name), err)
}
