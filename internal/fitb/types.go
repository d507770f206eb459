// Package fitb models fill-in-the-blank outfit data: generation outputs,
// retrieval candidates, user history and outfit templates.
package fitb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// OutfitGeneration is the generator output for one (user, outfit) pair.
// Each blank of the outfit gets one generated image, one category and,
// once retrieval ran, one predicted candidate slot.
type OutfitGeneration struct {
	ImagePaths []string `json:"image_paths,omitempty"`
	Images     []int    `json:"images,omitempty"`
	Cates      []int    `json:"cates"`
}

// HasPredictions reports whether retrieval already filled Images, one
// prediction per blank. An outfit without blanks trivially has them.
func (o *OutfitGeneration) HasPredictions() bool {
	return len(o.Images) == len(o.Cates)
}

// Generation maps user id -> outfit id -> generation.
type Generation map[int]map[int]*OutfitGeneration

// Each visits every outfit in ascending (user, outfit) order.
func (g Generation) Each(fn func(uid, oid int, o *OutfitGeneration) error) error {
	for _, uid := range sortedKeys(g) {
		outfits := g[uid]
		for _, oid := range sortedKeys(outfits) {
			if err := fn(uid, oid, outfits[oid]); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasPredictions reports whether every outfit carries predicted slots.
func (g Generation) HasPredictions() bool {
	if len(g) == 0 {
		return false
	}
	all := true
	_ = g.Each(func(_, _ int, o *OutfitGeneration) error {
		if !o.HasPredictions() {
			all = false
		}
		return nil
	})
	return all
}

// Candidates maps user id -> outfit id -> ordered candidate item ids.
// Index 0 is the ground-truth item.
type Candidates map[int]map[int][]int

// Lookup returns the candidate list of an outfit.
func (c Candidates) Lookup(uid, oid int) ([]int, bool) {
	outfits, ok := c[uid]
	if !ok {
		return nil, false
	}
	items, ok := outfits[oid]
	return items, ok
}

// Templates maps user id -> outfit id -> item ids, with 0 marking blanks.
type Templates map[int]map[int][]int

// Lookup returns the template of an outfit.
func (t Templates) Lookup(uid, oid int) ([]int, bool) {
	outfits, ok := t[uid]
	if !ok {
		return nil, false
	}
	items, ok := outfits[oid]
	return items, ok
}

// GroundTruthOutfit is a complete recorded outfit.
type GroundTruthOutfit struct {
	Outfits []int `json:"outfits"`
}

// GroundTruth maps outfit id -> recorded outfit.
type GroundTruth map[int]GroundTruthOutfit

// History holds per-user per-category CLIP embeddings of past interactions.
type History struct {
	Users map[int]map[int][]float32
	// Null is the embedding used for users or categories without history.
	Null []float32
}

// Lookup returns the history embedding of a user for a category.
func (h *History) Lookup(uid, cate int) ([]float32, bool) {
	cates, ok := h.Users[uid]
	if !ok {
		return nil, false
	}
	emb, ok := cates[cate]
	return emb, ok
}

// UnmarshalJSON decodes {"<uid>": {"<cate>": [...]}, "null": [...]}.
func (h *History) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	h.Users = make(map[int]map[int][]float32, len(raw))
	for key, value := range raw {
		if key == "null" {
			if err := json.Unmarshal(value, &h.Null); err != nil {
				return fmt.Errorf("history null entry: %w", err)
			}
			continue
		}
		uid, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("history user key %q: %w", key, err)
		}
		var cates map[int][]float32
		if err := json.Unmarshal(value, &cates); err != nil {
			return fmt.Errorf("history user %d: %w", uid, err)
		}
		h.Users[uid] = cates
	}
	return nil
}

// MarshalJSON encodes the history in the layout UnmarshalJSON reads.
func (h History) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Users)+1)
	for uid, cates := range h.Users {
		out[strconv.Itoa(uid)] = cates
	}
	if h.Null != nil {
		out["null"] = h.Null
	}
	return json.Marshal(out)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
