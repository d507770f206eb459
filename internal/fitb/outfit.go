package fitb

import (
	"fmt"
	"slices"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Slot is one blank of one outfit after retrieval.
type Slot struct {
	User      int
	Outfit    int
	Index     int
	ImagePath string
	Category  int
	// Pred is the chosen position in the candidate list.
	Pred int
	// GenItem is the retrieved item, GrdItem the ground-truth item.
	GenItem int
	GrdItem int
}

// Correct reports whether retrieval picked the ground-truth candidate.
func (s Slot) Correct() bool {
	return s.Pred == 0
}

// Slots flattens a predicted generation into its blanks, resolving every
// predicted slot against the candidate list.
func Slots(gen Generation, cands Candidates) ([]Slot, error) {
	var slots []Slot
	err := gen.Each(func(uid, oid int, o *OutfitGeneration) error {
		if len(o.Images) != len(o.Cates) {
			return errors.ValidationError(fmt.Sprintf(
				"user %d outfit %d: %d predictions for %d categories", uid, oid, len(o.Images), len(o.Cates)))
		}
		if len(o.ImagePaths) != 0 && len(o.ImagePaths) != len(o.Cates) {
			return errors.ValidationError(fmt.Sprintf(
				"user %d outfit %d: %d images for %d categories", uid, oid, len(o.ImagePaths), len(o.Cates)))
		}
		items, ok := cands.Lookup(uid, oid)
		if !ok {
			return errors.NotFoundError(fmt.Sprintf("candidates of user %d outfit %d", uid, oid))
		}
		if len(items) == 0 {
			return errors.ValidationError(fmt.Sprintf("user %d outfit %d: empty candidate list", uid, oid))
		}

		for i, pred := range o.Images {
			if pred < 0 || pred >= len(items) {
				return errors.ValidationError(fmt.Sprintf(
					"user %d outfit %d: predicted slot %d outside %d candidates", uid, oid, pred, len(items)))
			}
			slot := Slot{
				User:     uid,
				Outfit:   oid,
				Index:    i,
				Category: o.Cates[i],
				Pred:     pred,
				GenItem:  items[pred],
				GrdItem:  items[0],
			}
			if len(o.ImagePaths) > 0 {
				slot.ImagePath = o.ImagePaths[i]
			}
			slots = append(slots, slot)
		}
		return nil
	})
	return slots, err
}

// Accuracy is the share of slots whose prediction is the ground-truth candidate.
func Accuracy(slots []Slot) float64 {
	if len(slots) == 0 {
		return 0
	}
	correct := 0
	for _, s := range slots {
		if s.Correct() {
			correct++
		}
	}
	return float64(correct) / float64(len(slots))
}

// Fill places items into the blanks (0 entries) of template in order.
// Blanks without an item stay 0.
func Fill(template, items []int) ([]int, error) {
	out := slices.Clone(template)
	next := 0
	for i, id := range out {
		if id != 0 {
			continue
		}
		if next == len(items) {
			break
		}
		out[i] = items[next]
		next++
	}
	if next < len(items) {
		return nil, errors.ValidationError(fmt.Sprintf("%d items for %d blanks", len(items), next))
	}
	return out, nil
}

// OutfitPair is a generated outfit and its ground-truth counterpart.
type OutfitPair struct {
	User   int
	Outfit int
	Gen    []int
	Grd    []int
}

// BuildOutfits completes every template with the retrieved and the
// ground-truth items. The ground-truth outfit must equal the recorded one.
func BuildOutfits(slots []Slot, templates Templates, grd GroundTruth) ([]OutfitPair, error) {
	type key struct{ uid, oid int }
	var order []key
	genItems := make(map[key][]int)
	grdItems := make(map[key][]int)
	for _, s := range slots {
		k := key{s.User, s.Outfit}
		if _, ok := genItems[k]; !ok {
			order = append(order, k)
		}
		genItems[k] = append(genItems[k], s.GenItem)
		grdItems[k] = append(grdItems[k], s.GrdItem)
	}

	pairs := make([]OutfitPair, 0, len(order))
	for _, k := range order {
		template, ok := templates.Lookup(k.uid, k.oid)
		if !ok {
			return nil, errors.NotFoundError(fmt.Sprintf("template of user %d outfit %d", k.uid, k.oid))
		}
		gen, err := Fill(template, genItems[k])
		if err != nil {
			return nil, errors.OutfitMismatchError(k.uid, k.oid, "generated outfit: "+err.Error())
		}
		grdOutfit, err := Fill(template, grdItems[k])
		if err != nil {
			return nil, errors.OutfitMismatchError(k.uid, k.oid, "ground-truth outfit: "+err.Error())
		}

		recorded, ok := grd[k.oid]
		if !ok {
			return nil, errors.NotFoundError(fmt.Sprintf("ground truth of outfit %d", k.oid))
		}
		if !slices.Equal(grdOutfit, recorded.Outfits) {
			return nil, errors.OutfitMismatchError(k.uid, k.oid,
				fmt.Sprintf("reconstructed %v, recorded %v", grdOutfit, recorded.Outfits))
		}

		pairs = append(pairs, OutfitPair{User: k.uid, Outfit: k.oid, Gen: gen, Grd: grdOutfit})
	}
	return pairs, nil
}
