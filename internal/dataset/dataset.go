// Package dataset loads the item catalog, the per-mode FITB split and the
// generation outputs an evaluation run consumes.
package dataset

import (
	"fmt"
	"path/filepath"

	"github.com/fitbench/fitbench/internal/fitb"
	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/jsonfile"
)

// File names under the dataset directory.
const (
	CategoriesFile = "id_cate_dict.json"
	ImagePathsFile = "all_item_image_paths.json"
	FeaturesFile   = "cnn_features_clip.npy"
)

// Catalog describes every item of a dataset.
type Catalog struct {
	Categories map[int]string
	ImagePaths []string
	Features   *Matrix
	imageDir   string
}

// LoadCatalog reads category names, item image paths and CLIP item features.
func LoadCatalog(dataDir, imageDir string) (*Catalog, error) {
	c := &Catalog{imageDir: imageDir}

	if err := jsonfile.Read(filepath.Join(dataDir, CategoriesFile), &c.Categories); err != nil {
		return nil, err
	}
	if err := jsonfile.Read(filepath.Join(dataDir, ImagePathsFile), &c.ImagePaths); err != nil {
		return nil, err
	}

	features, err := LoadMatrix(filepath.Join(dataDir, FeaturesFile))
	if err != nil {
		return nil, err
	}
	if features.Len() < len(c.ImagePaths) {
		return nil, errors.ValidationError(fmt.Sprintf(
			"%s has %d rows for %d items", FeaturesFile, features.Len(), len(c.ImagePaths)))
	}
	c.Features = features

	return c, nil
}

// ImagePath returns the image file of an item.
func (c *Catalog) ImagePath(id int) (string, error) {
	if id < 0 || id >= len(c.ImagePaths) {
		return "", errors.NotFoundError(fmt.Sprintf("image of item %d", id))
	}
	return filepath.Join(c.imageDir, c.ImagePaths[id]), nil
}

// Category returns the category name of a category id.
func (c *Catalog) Category(id int) (string, error) {
	name, ok := c.Categories[id]
	if !ok {
		return "", errors.NotFoundError(fmt.Sprintf("category %d", id))
	}
	return name, nil
}

// Split holds the per-mode FITB inputs.
type Split struct {
	Mode        string
	History     *fitb.History
	Candidates  fitb.Candidates
	Templates   fitb.Templates
	GroundTruth fitb.GroundTruth
}

// SplitFiles returns the files of a mode's split, relative to the dataset dir.
func SplitFiles(mode string) (history, candidates, templates, grd string) {
	return filepath.Join("processed", mode+"_history_clipembs.json"),
		fmt.Sprintf("fitb_%s_retrieval_candidates.json", mode),
		fmt.Sprintf("fitb_%s_dict.json", mode),
		mode + "_grd.json"
}

// LoadSplit reads history, candidates, templates and ground-truth outfits
// of mode ("valid" or "test").
func LoadSplit(dataDir, mode string) (*Split, error) {
	historyFile, candidatesFile, templatesFile, grdFile := SplitFiles(mode)
	s := &Split{Mode: mode, History: &fitb.History{}}

	files := []struct {
		name string
		dst  any
	}{
		{historyFile, s.History},
		{candidatesFile, &s.Candidates},
		{templatesFile, &s.Templates},
		{grdFile, &s.GroundTruth},
	}
	for _, f := range files {
		if err := jsonfile.Read(filepath.Join(dataDir, f.name), f.dst); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadGeneration reads a checkpoint's generation output, preferring the
// "-preds" file. Only a missing "-preds" file falls back to the plain one.
func LoadGeneration(evalDir string, names fitb.Names, ckpt int) (fitb.Generation, bool, error) {
	var gen fitb.Generation

	err := jsonfile.Read(filepath.Join(evalDir, names.Generation(ckpt, true)), &gen)
	if err == nil {
		return gen, true, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, err
	}

	gen = nil
	if err := jsonfile.Read(filepath.Join(evalDir, names.Generation(ckpt, false)), &gen); err != nil {
		return nil, false, err
	}
	return gen, false, nil
}

// SaveGeneration writes a generation with predictions to its "-preds" file.
func SaveGeneration(evalDir string, names fitb.Names, ckpt int, gen fitb.Generation) (string, error) {
	path := filepath.Join(evalDir, names.Generation(ckpt, true))
	return path, jsonfile.Write(path, gen)
}

// CheckReference verifies the grounding reference of the run exists and parses.
func CheckReference(evalDir string, names fitb.Names) error {
	var ref any
	return jsonfile.Read(filepath.Join(evalDir, names.Reference()), &ref)
}
