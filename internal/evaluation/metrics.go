package evaluation

import (
	"context"
	"fmt"

	"github.com/fitbench/fitbench/internal/dataset"
	"github.com/fitbench/fitbench/internal/fitb"
	"github.com/fitbench/fitbench/internal/ml"
	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/logger"
	"github.com/fitbench/fitbench/internal/results"
)

// checkpoint holds the inputs of one checkpoint and the embeddings shared
// between metrics.
type checkpoint struct {
	id       int
	slots    []fitb.Slot
	catalog  *dataset.Catalog
	split    *dataset.Split
	backends Backends
	sim      ml.SimilarityFunc
	policy   string
	log      *logger.Logger

	genPaths []string
	grdPaths []string
	genEmbs  [][]float32
	grdEmbs  [][]float32
	txtEmbs  [][]float32
}

func (c *checkpoint) resolvePaths() error {
	if c.genPaths != nil {
		return nil
	}
	gen := make([]string, len(c.slots))
	grd := make([]string, len(c.slots))
	for i, s := range c.slots {
		var err error
		if gen[i], err = c.catalog.ImagePath(s.GenItem); err != nil {
			return err
		}
		if grd[i], err = c.catalog.ImagePath(s.GrdItem); err != nil {
			return err
		}
	}
	c.genPaths, c.grdPaths = gen, grd
	return nil
}

func (c *checkpoint) imageEmbeddings(ctx context.Context) (gen, grd [][]float32, err error) {
	if c.genEmbs != nil {
		return c.genEmbs, c.grdEmbs, nil
	}
	if err := c.resolvePaths(); err != nil {
		return nil, nil, err
	}
	enc, err := c.backends.ImageEmbedder()
	if err != nil {
		return nil, nil, err
	}
	if c.genEmbs, err = enc.EmbedImages(ctx, c.genPaths); err != nil {
		return nil, nil, err
	}
	if c.grdEmbs, err = enc.EmbedImages(ctx, c.grdPaths); err != nil {
		return nil, nil, err
	}
	return c.genEmbs, c.grdEmbs, nil
}

func (c *checkpoint) textEmbeddings(ctx context.Context) ([][]float32, error) {
	if c.txtEmbs != nil {
		return c.txtEmbs, nil
	}
	prompts := make([]string, len(c.slots))
	for i, s := range c.slots {
		name, err := c.catalog.Category(s.Category)
		if err != nil {
			return nil, err
		}
		prompts[i] = fitb.CategoryPrompt(name)
	}
	enc, err := c.backends.TextEmbedder()
	if err != nil {
		return nil, err
	}
	if c.txtEmbs, err = enc.EmbedTexts(ctx, prompts); err != nil {
		return nil, err
	}
	return c.txtEmbs, nil
}

// metric computes one or more record entries.
type metric struct {
	names   []string
	compute func(ctx context.Context, c *checkpoint) ([]float64, error)
}

// metrics lists every metric in persistence order.
var metrics = []metric{
	{[]string{results.MetricAccuracy}, accuracy},
	{[]string{results.MetricClipScore}, clipScore(false)},
	{[]string{results.MetricGrdClipScore}, clipScore(true)},
	{[]string{results.MetricClipImageScore}, clipImageScore},
	{[]string{results.MetricLPIPS}, lpipsScore},
	{[]string{results.MetricPersonalSim}, personalSim},
	{[]string{results.MetricCompatibility, results.MetricGrdCompatibility}, compatibility},
}

func accuracy(_ context.Context, c *checkpoint) ([]float64, error) {
	return []float64{fitb.Accuracy(c.slots)}, nil
}

// clipScore is 100 * max(cos(image, prompt), 0) averaged over slots, using
// the retrieved image or, for grd, the ground-truth image.
func clipScore(grd bool) func(context.Context, *checkpoint) ([]float64, error) {
	return func(ctx context.Context, c *checkpoint) ([]float64, error) {
		gen, grdEmbs, err := c.imageEmbeddings(ctx)
		if err != nil {
			return nil, err
		}
		images := gen
		if grd {
			images = grdEmbs
		}
		texts, err := c.textEmbeddings(ctx)
		if err != nil {
			return nil, err
		}

		var sum float64
		for i := range images {
			sum += 100 * float64(max(ml.Cosine(images[i], texts[i]), 0))
		}
		return []float64{sum / float64(len(images))}, nil
	}
}

func clipImageScore(ctx context.Context, c *checkpoint) ([]float64, error) {
	gen, grd, err := c.imageEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	var sum float64
	for i := range gen {
		sum += float64(c.sim(gen[i], grd[i]))
	}
	return []float64{sum / float64(len(gen))}, nil
}

func lpipsScore(ctx context.Context, c *checkpoint) ([]float64, error) {
	if err := c.resolvePaths(); err != nil {
		return nil, err
	}
	m, err := c.backends.PerceptualMetric()
	if err != nil {
		return nil, err
	}
	dists, err := m.Distances(ctx, c.genPaths, c.grdPaths)
	if err != nil {
		return nil, err
	}
	return []float64{meanFloat32(dists)}, nil
}

// personalSim compares each retrieved image with the user's history
// embedding of the slot's category. Slots without history follow the
// missing-history policy.
func personalSim(ctx context.Context, c *checkpoint) ([]float64, error) {
	gen, _, err := c.imageEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	var sum float64
	var n, dropped int
	for i, s := range c.slots {
		hist, ok := c.split.History.Lookup(s.User, s.Category)
		if !ok {
			if c.policy != MissingHistoryNull {
				dropped++
				continue
			}
			if c.split.History.Null == nil {
				return nil, errors.ValidationError(fmt.Sprintf(
					"user %d has no history for category %d and the history has no null entry", s.User, s.Category))
			}
			hist = c.split.History.Null
		}
		sum += float64(c.sim(gen[i], hist))
		n++
	}

	if dropped > 0 {
		c.log.Warn("Slots without history dropped from personalization", "dropped", dropped, "kept", n)
	}
	if n == 0 {
		return nil, errors.ValidationError("no slot has user history for personalization")
	}
	return []float64{sum / float64(n)}, nil
}

// compatibility scores the reconstructed generated and ground-truth outfits.
func compatibility(ctx context.Context, c *checkpoint) ([]float64, error) {
	pairs, err := fitb.BuildOutfits(c.slots, c.split.Templates, c.split.GroundTruth)
	if err != nil {
		return nil, err
	}
	gen := make([][]int, len(pairs))
	grd := make([][]int, len(pairs))
	for i, p := range pairs {
		gen[i], grd[i] = p.Gen, p.Grd
	}

	model, err := c.backends.CompatibilityModel()
	if err != nil {
		return nil, err
	}
	genScores, err := model.Scores(ctx, gen)
	if err != nil {
		return nil, err
	}
	grdScores, err := model.Scores(ctx, grd)
	if err != nil {
		return nil, err
	}
	return []float64{meanFloat32(genScores), meanFloat32(grdScores)}, nil
}

func meanFloat32(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	return sum / float64(len(v))
}
