package fitb

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	apperrors "github.com/fitbench/fitbench/internal/pkg/errors"
)

func TestScaleTag(t *testing.T) {
	tests := []struct {
		cate, mutual, hist float64
		want               string
	}{
		{12, 5, 4, "cate12.0-mutual5.0-hist4.0"},
		{7.5, 0, 1.25, "cate7.5-mutual0.0-hist1.25"},
	}
	for _, tt := range tests {
		if got := ScaleTag(tt.cate, tt.mutual, tt.hist); got != tt.want {
			t.Errorf("ScaleTag(%v, %v, %v) = %s, want %s", tt.cate, tt.mutual, tt.hist, got, tt.want)
		}
	}
}

func TestPyFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{12, "12.0"},
		{-2.5, "-2.5"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{0.000015, "1.5e-05"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1.5e16, "1.5e+16"},
		{1e100, "1e+100"},
		{math.Inf(1), "inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		if got := pyFloat(tt.in); got != tt.want {
			t.Errorf("pyFloat(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNames(t *testing.T) {
	n := NewNames("FITB", 12, 5, 4)

	if got := n.Generation(1200, false); got != "FITB-checkpoint-1200-cate12.0-mutual5.0-hist4.0.json" {
		t.Errorf("Generation() = %s", got)
	}
	if got := n.Generation(1200, true); got != "FITB-checkpoint-1200-cate12.0-mutual5.0-hist4.0-preds.json" {
		t.Errorf("Generation(preds) = %s", got)
	}
	if got := n.Reference(); got != "FITB-grd-new.json" {
		t.Errorf("Reference() = %s", got)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	n := NewNames("FITB", 12, 5, 4)

	files := []string{
		n.Generation(300, false),
		n.Generation(100, false),
		n.Generation(100, true),
		"FITB-checkpoint-200-cate12.0-mutual5.0-hist4.0-cnnfeat.npy",
		"FITB-checkpoint-400-cate10.0-mutual5.0-hist4.0.json",
		n.Reference(),
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := n.Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if want := []int{100, 300}; !slices.Equal(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestParseCheckpoints(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "[100, 200]", want: []int{100, 200}},
		{in: "100,200", want: []int{100, 200}},
		{in: "100", want: []int{100}},
		{in: " [ 3000 ] ", want: []int{3000}},
		{in: "[]", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCheckpoints(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCheckpoints(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseCheckpoints(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseCheckpoints("all"); !errors.Is(err, ErrDiscover) {
		t.Errorf("ParseCheckpoints(all) error = %v, want ErrDiscover", err)
	}
}

func TestCategoryPrompt(t *testing.T) {
	tests := map[string]string{
		"dress":         "A photo of a dress, on white background",
		"running shoes": "A photo of a pair of running shoes, on white background",
		"jeans pants":   "A photo of a pair of jeans pants, on white background",
	}
	for in, want := range tests {
		if got := CategoryPrompt(in); got != want {
			t.Errorf("CategoryPrompt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHistoryJSON(t *testing.T) {
	data := []byte(`{"7": {"3": [0.5, 0.5]}, "null": [1, 0]}`)

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	emb, ok := h.Lookup(7, 3)
	if !ok || !slices.Equal(emb, []float32{0.5, 0.5}) {
		t.Errorf("Lookup(7, 3) = %v, %v", emb, ok)
	}
	if _, ok := h.Lookup(7, 4); ok {
		t.Error("Lookup(7, 4) should miss")
	}
	if !slices.Equal(h.Null, []float32{1, 0}) {
		t.Errorf("Null = %v", h.Null)
	}
}

func TestGenerationEachOrder(t *testing.T) {
	gen := Generation{
		2: {5: {Cates: []int{1}}, 1: {Cates: []int{1}}},
		1: {9: {Cates: []int{1}}},
	}
	var visited [][2]int
	_ = gen.Each(func(uid, oid int, _ *OutfitGeneration) error {
		visited = append(visited, [2]int{uid, oid})
		return nil
	})
	want := [][2]int{{1, 9}, {2, 1}, {2, 5}}
	if !slices.Equal(visited, want) {
		t.Errorf("Each() order = %v, want %v", visited, want)
	}
}

func fixture() (Generation, Candidates, Templates, GroundTruth) {
	gen := Generation{
		1: {10: {ImagePaths: []string{"a.png", "b.png"}, Images: []int{0, 2}, Cates: []int{3, 4}}},
		2: {20: {ImagePaths: []string{"c.png"}, Images: []int{1}, Cates: []int{5}}},
	}
	cands := Candidates{
		1: {10: {101, 102, 103}},
		2: {20: {201, 202}},
	}
	templates := Templates{
		1: {10: {500, 0, 0}},
		2: {20: {0, 600}},
	}
	grd := GroundTruth{
		10: {Outfits: []int{500, 101, 101}},
		20: {Outfits: []int{201, 600}},
	}
	return gen, cands, templates, grd
}

func TestSlotsAndAccuracy(t *testing.T) {
	gen, cands, _, _ := fixture()

	slots, err := Slots(gen, cands)
	if err != nil {
		t.Fatalf("Slots() error = %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("len(slots) = %d, want 3", len(slots))
	}
	if slots[1].GenItem != 103 || slots[1].GrdItem != 101 || slots[1].ImagePath != "b.png" {
		t.Errorf("slot 1 = %+v", slots[1])
	}

	// one of three predictions is slot 0
	if got := Accuracy(slots); got != 1.0/3.0 {
		t.Errorf("Accuracy() = %v, want 1/3", got)
	}
	if got := Accuracy(nil); got != 0 {
		t.Errorf("Accuracy(nil) = %v, want 0", got)
	}
}

func TestSlots_Errors(t *testing.T) {
	gen, cands, _, _ := fixture()

	gen[1][10].Images = []int{0, 7}
	if _, err := Slots(gen, cands); !apperrors.IsValidation(err) {
		t.Errorf("out of range prediction: error = %v, want validation", err)
	}

	gen, cands, _, _ = fixture()
	delete(cands, 2)
	if _, err := Slots(gen, cands); !apperrors.IsNotFound(err) {
		t.Errorf("missing candidates: error = %v, want not found", err)
	}
}

func TestFill(t *testing.T) {
	got, err := Fill([]int{5, 0, 6, 0}, []int{1, 2})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if want := []int{5, 1, 6, 2}; !slices.Equal(got, want) {
		t.Errorf("Fill() = %v, want %v", got, want)
	}

	if _, err := Fill([]int{5, 0}, []int{1, 2}); err == nil {
		t.Error("Fill() with too many items should fail")
	}
}

func TestBuildOutfits(t *testing.T) {
	gen, cands, templates, grd := fixture()
	slots, err := Slots(gen, cands)
	if err != nil {
		t.Fatal(err)
	}

	pairs, err := BuildOutfits(slots, templates, grd)
	if err != nil {
		t.Fatalf("BuildOutfits() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if !slices.Equal(pairs[0].Gen, []int{500, 101, 103}) {
		t.Errorf("pairs[0].Gen = %v", pairs[0].Gen)
	}
	if !slices.Equal(pairs[1].Gen, []int{202, 600}) {
		t.Errorf("pairs[1].Gen = %v", pairs[1].Gen)
	}
}

func TestBuildOutfits_Mismatch(t *testing.T) {
	tests := []struct {
		name   string
		modify func(templates Templates, grd GroundTruth)
	}{
		{
			name: "recorded outfit differs",
			modify: func(_ Templates, grd GroundTruth) {
				grd[20] = GroundTruthOutfit{Outfits: []int{999, 600}}
			},
		},
		{
			name: "more predictions than blanks",
			modify: func(templates Templates, _ GroundTruth) {
				templates[1][10] = []int{500, 0, 700}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, cands, templates, grd := fixture()
			tt.modify(templates, grd)

			slots, err := Slots(gen, cands)
			if err != nil {
				t.Fatal(err)
			}
			_, err = BuildOutfits(slots, templates, grd)
			if !apperrors.IsOutfitMismatch(err) {
				t.Fatalf("BuildOutfits() error = %v, want outfit mismatch", err)
			}
		})
	}
}

func TestGenerationHasPredictions(t *testing.T) {
	tests := []struct {
		name string
		gen  Generation
		want bool
	}{
		{"empty", Generation{}, false},
		{"not retrieved", Generation{1: {10: {Cates: []int{3}}}}, false},
		{"retrieved", Generation{1: {10: {Images: []int{0}, Cates: []int{3}}}}, true},
		{"partially retrieved", Generation{1: {10: {Images: []int{0}, Cates: []int{3, 4}}}}, false},
		{
			"outfit without blanks",
			Generation{1: {10: {Images: []int{1}, Cates: []int{3}}, 11: {}}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gen.HasPredictions(); got != tt.want {
				t.Errorf("HasPredictions() = %v, want %v", got, tt.want)
			}
		})
	}
}
