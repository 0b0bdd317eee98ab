package segmenter

import (
	"context"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/fixedpoint"
	"github.com/teatak/latseg/lattice"
	"github.com/teatak/latseg/weights"
)

// newTestSegmenter builds a segmenter whose unit log-weights are
// log(freq/1000); units missing from freqs get frequency 1.
func newTestSegmenter(t *testing.T, units []string, freqs map[string]float64, prefix string) *Segmenter {
	t.Helper()
	opts := dictionary.Options{PadToken: "[PAD]", UnkToken: "[UNK]", BOSToken: "[BOS]", ContinuationPrefix: prefix}
	dict, err := dictionary.New(units, opts)
	if err != nil {
		t.Fatalf("dictionary.New: %v", err)
	}
	rows := make([][]float64, len(units))
	for i, u := range units {
		f, ok := freqs[u]
		if !ok {
			f = 1
		}
		rows[i] = []float64{math.Log(f / 1000)}
	}
	table, err := weights.FromRows(dict, rows, weights.Options{Components: 1, LogSpace: true})
	if err != nil {
		t.Fatalf("weights.FromRows: %v", err)
	}
	b, err := lattice.NewBuilder(dict, lattice.Options{MaxBlocks: 4, BlockSize: 20, MaxUnitLength: 4, AddBOS: true})
	if err != nil {
		t.Fatalf("lattice.NewBuilder: %v", err)
	}
	return NewSegmenter(b, table, &dp.Engine{})
}

func nanjingSegmenter(t *testing.T) *Segmenter {
	units := []string{"[UNK]", "南京市", "长江大桥", "南京", "市长", "长江", "大桥", "江", "大", "桥", "南", "京", "市", "长"}
	freqs := map[string]float64{
		"南京市":  100,
		"长江大桥": 100, // High freq to prefer this over 长江 + 大桥
		"南京":   10,
		"市长":   10,
		"长江":   10,
		"大桥":   10,
		"江":    5,
		"大":    5,
		"桥":    5,
	}
	return newTestSegmenter(t, units, freqs, "")
}

func TestCut(t *testing.T) {
	seg := nanjingSegmenter(t)

	tests := []struct {
		text     string
		expected []string
	}{
		{"南京市长江大桥", []string{"南京市", "长江大桥"}},
		{"我是程序员", []string{"我", "是", "程", "序", "员"}}, // OOV example
		{"南京 大桥", []string{"南京", "大桥"}},
		{"", nil},
	}

	for _, tt := range tests {
		got, err := seg.Cut(tt.text, ModeViterbi)
		if err != nil {
			t.Fatalf("Cut(%q): %v", tt.text, err)
		}
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Cut(%q) = %v, want %v", tt.text, got, tt.expected)
		}
	}
}

func TestCutBatch(t *testing.T) {
	seg := nanjingSegmenter(t)
	texts := []string{"南京市长江大桥", "我是程序员", "南京市"}
	got, err := seg.CutBatch(texts)
	if err != nil {
		t.Fatalf("CutBatch: %v", err)
	}
	for i, text := range texts {
		want, err := seg.Cut(text)
		if err != nil {
			t.Fatalf("Cut(%q): %v", text, err)
		}
		if !reflect.DeepEqual(got[i], want) {
			t.Errorf("CutBatch[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestCutForSearch(t *testing.T) {
	seg := nanjingSegmenter(t)

	tests := []struct {
		text     string
		expected []string
	}{
		{"南京市长江大桥", []string{"南京", "南京市", "长江", "大桥", "长江大桥"}},
	}

	for _, tt := range tests {
		got, err := seg.CutSearch(tt.text, ModeViterbi)
		if err != nil {
			t.Fatalf("CutSearch(%q): %v", tt.text, err)
		}
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("CutSearch(%q) = %v, want %v", tt.text, got, tt.expected)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	// only single characters: exactly one path per block
	seg := newTestSegmenter(t, []string{"h", "e", "l", "o", "w", "r", "d"}, nil, "")
	text := "helloworld"
	lat, err := seg.Builder.Build(text)
	if err != nil {
		t.Fatal(err)
	}
	vr, err := seg.Engine.Viterbi(lat, seg.Table.EdgeWeights(lat, true))
	if err != nil {
		t.Fatal(err)
	}
	dict := seg.Builder.Dictionary()
	ids := FilterPadding(Decode(lat, vr.Path), dict.PadID)
	if ids[0] != dict.BOSID {
		t.Errorf("first id = %d, want BOS %d", ids[0], dict.BOSID)
	}
	if got := strings.Join(Render(dict, ids, false), ""); got != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}
}

func TestRenderMergesContinuations(t *testing.T) {
	seg := newTestSegmenter(t, []string{"h", "##a", "##t", "##e", "##ate", "at", "a", "t"}, nil, "##")
	lat, err := seg.Builder.Build("hate at")
	if err != nil {
		t.Fatal(err)
	}
	vr, err := seg.Engine.Viterbi(lat, seg.Table.EdgeWeights(lat, true))
	if err != nil {
		t.Fatal(err)
	}
	dict := seg.Builder.Dictionary()
	ids := Decode(lat, vr.Path)

	if got, want := Render(dict, ids, false), []string{"h", "##ate", "at"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Render = %v, want %v", got, want)
	}
	if got, want := Render(dict, ids, true), []string{"hate", "at"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Render(merge) = %v, want %v", got, want)
	}

	segs := DecodeSegments(lat, vr.Path)
	if last := segs[len(segs)-1]; last.Text != "at" || last.Start != 5 || last.End != 6 {
		t.Errorf("last segment = %+v", last)
	}
}

func TestFilterPadding(t *testing.T) {
	got := FilterPadding([]int{3, 0, 1, 0, 0, 2}, 0)
	if !reflect.DeepEqual(got, []int{3, 1, 2}) {
		t.Errorf("FilterPadding = %v", got)
	}
}

func TestDecodeUnreachableBlock(t *testing.T) {
	dict, err := dictionary.New([]string{"a"}, dictionary.Options{PadToken: "[PAD]"})
	if err != nil {
		t.Fatal(err)
	}
	table, err := weights.New(dict, weights.Options{Components: 1, LogSpace: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := lattice.NewBuilder(dict, lattice.Options{MaxBlocks: 1, BlockSize: 4, MaxUnitLength: 2})
	if err != nil {
		t.Fatal(err)
	}
	lat, err := b.Build("xa")
	if err != nil {
		t.Fatal(err)
	}
	vr, err := (&dp.Engine{}).Viterbi(lat, table.EdgeWeights(lat, true))
	if err != nil {
		t.Fatal(err)
	}
	if ids := Decode(lat, vr.Path); len(ids) != 0 {
		t.Errorf("Decode = %v, want nothing", ids)
	}
}

func TestCutFixedPoint(t *testing.T) {
	units := []string{"[UNK]", "h", "a", "t", "e", "hate"}
	seg := newTestSegmenter(t, units, map[string]float64{"h": 1000, "a": 1000, "t": 1000, "e": 1000, "hate": 1e-6}, "")

	got, err := seg.Cut("hate", ModeFixedPoint)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"h", "a", "t", "e"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cut without driver = %v, want %v", got, want)
	}

	// a scorer that is uniform over the vocabulary makes every edge equal,
	// so the single-edge path wins
	uniform := fixedpoint.ScorerFunc(func(ctx context.Context, lat *lattice.Lattice, bias *dp.ForwardResult, mode fixedpoint.Mode) (*mat.Dense, error) {
		v := seg.Builder.Dictionary().Len()
		out := mat.NewDense(lat.Blocks*lat.BlockSize, v, nil)
		for i := 0; i < lat.Blocks*lat.BlockSize; i++ {
			for j := 0; j < v; j++ {
				out.Set(i, j, -math.Log(float64(v)))
			}
		}
		return out, nil
	})
	seg.Driver = fixedpoint.NewDriver(seg.Engine, uniform, fixedpoint.DefaultOptions())
	got, err = seg.Cut("hate", ModeFixedPoint)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"hate"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cut(ModeFixedPoint) = %v, want %v", got, want)
	}
}

func TestOpen(t *testing.T) {
	seg := nanjingSegmenter(t)
	path := filepath.Join(t.TempDir(), "model.tsv")
	if err := seg.Table.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg := config.Default()
	cfg.MaxBlocks, cfg.BlockSize, cfg.MaxUnitLength = 4, 20, 4
	opened, err := Open(cfg, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := opened.Cut("南京市长江大桥")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"南京市", "长江大桥"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cut after Open = %v, want %v", got, want)
	}
	if opened.Driver != nil {
		t.Error("Open attached a fixed-point driver")
	}
	fallback, err := opened.Cut("南京市长江大桥", ModeFixedPoint)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fallback, got) {
		t.Errorf("Cut(ModeFixedPoint) without driver = %v, want %v", fallback, got)
	}

	if _, err := Open(cfg, filepath.Join(t.TempDir(), "missing.tsv")); err == nil {
		t.Error("Open of a missing checkpoint succeeded")
	}
}
