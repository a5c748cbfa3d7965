package opencv

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"face-attendance-go/config"
	"face-attendance-go/internal/embedding"
	"face-attendance-go/internal/landmarks"

	"gocv.io/x/gocv"
)

func syntheticFace(w, h int) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := (x*255/w + y*128/h) % 256
			if (x/10+y/10)%2 == 0 {
				v = 255 - v
			}
			m.SetUCharAt(y, x, uint8(v))
		}
	}
	return m
}

func TestPlausibleIntensity(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		want     bool
	}{
		{"normal face", 12, 230, true},
		{"flat output", 0, 3, false},
		{"underflow", -5, 200, false},
		{"overflow", 0, 300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plausibleIntensity(tt.min, tt.max); got != tt.want {
				t.Errorf("plausibleIntensity(%v, %v) = %v, want %v", tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestOrientationHistogram(t *testing.T) {
	hist := orientationHistogram([]float64{0, 10, 359.9, 180}, []float64{1, 1, 2, 0}, 16)
	if hist[0] != 0.5 || hist[15] != 0.5 {
		t.Fatalf("hist = %v", hist)
	}
	empty := orientationHistogram([]float64{10, 20}, []float64{0, 0}, 16)
	for _, v := range empty {
		if v != 0 {
			t.Fatalf("zero gradients must give an empty histogram, got %v", empty)
		}
	}
}

func TestHuMomentsOfSymmetricShape(t *testing.T) {
	hu := huMoments(map[string]float64{"nu20": 0.1, "nu02": 0.1})
	if math.Abs(hu[0]-0.2) > 1e-12 {
		t.Fatalf("hu[0] = %v", hu[0])
	}
	for i := 1; i < 7; i++ {
		if hu[i] != 0 {
			t.Fatalf("hu[%d] = %v, want 0", i, hu[i])
		}
	}
}

func TestNormalizerFallsBackToResize(t *testing.T) {
	n := NewNormalizer(config.OpenCVConfig{CascadeDir: t.TempDir()}, 112, nil)
	defer n.Close()
	if n.CanAlign() {
		t.Fatal("no eye cascade present, alignment must be disabled")
	}

	crop := syntheticFace(150, 200)
	defer crop.Close()
	out := n.Normalize(crop)
	defer out.Close()
	if out.Cols() != 112 || out.Rows() != 112 {
		t.Fatalf("output %dx%d, want 112x112", out.Cols(), out.Rows())
	}

	empty := gocv.NewMat()
	defer empty.Close()
	res := n.Normalize(empty)
	defer res.Close()
	if !res.Empty() {
		t.Fatal("empty crop must give empty output")
	}
}

func TestHeuristicExtractor(t *testing.T) {
	e := NewHeuristicExtractor(512, nil)
	crop := syntheticFace(120, 140)
	defer crop.Close()

	first, ok := e.Extract(crop)
	if !ok {
		t.Fatal("extraction failed")
	}
	if len(first) != 512*embedding.Float64Size {
		t.Fatalf("len = %d", len(first))
	}
	v := embedding.DecodeFloat64(first)
	if m := embedding.Magnitude(v); math.Abs(m-1) > 1e-6 {
		t.Fatalf("magnitude = %v", m)
	}
	for i := gradientOffset + gradientBins; i < len(v); i++ {
		if v[i] != 0 {
			t.Fatalf("component %d beyond the feature blocks is %v", i, v[i])
		}
	}

	second, _ := e.Extract(crop)
	if !bytes.Equal(first, second) {
		t.Fatal("extraction must be deterministic")
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, ok := e.Extract(empty); ok {
		t.Fatal("empty crop must fail")
	}
}

func TestNewExtractorChoosesStrategy(t *testing.T) {
	dir := t.TempDir()
	rec := config.RecognitionConfig{EmbeddingSize: 512, CanonicalSize: 112}
	n := NewNormalizer(config.OpenCVConfig{CascadeDir: dir}, 112, nil)
	defer n.Close()

	ex, err := NewExtractor(config.OpenCVConfig{ModelPath: dir + "/missing.onnx"}, rec, n, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ex.IsNeural() {
		t.Fatal("missing model must select the heuristic strategy")
	}

	_, err = NewExtractor(config.OpenCVConfig{ModelPath: dir + "/missing.onnx", RequireModel: true}, rec, n, nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestCascadeDetectorNeedsCascade(t *testing.T) {
	_, err := NewCascadeDetector(config.OpenCVConfig{CascadeDir: t.TempDir(), FaceCascade: "face.xml"}, 60, nil)
	if !errors.Is(err, ErrCascadeUnavailable) {
		t.Fatalf("err = %v, want ErrCascadeUnavailable", err)
	}
}

func TestDebugServiceKeepsLatest(t *testing.T) {
	s := NewDebugService(2)
	s.add("cam", []byte{1}, []string{"a"})
	s.add("cam", []byte{2}, nil)
	third := s.add("cam", []byte{3}, []string{"b", "c"})

	if s.GetFrame("cam-1") != nil {
		t.Fatal("oldest frame must be dropped")
	}
	latest := s.GetLatestFrames(0)
	if len(latest) != 2 || latest[1] != third {
		t.Fatalf("latest = %v", latest)
	}
	if third.Faces != 2 || third.ID != "cam-3" {
		t.Fatalf("frame = %+v", third)
	}
}

func TestAlignTransform(t *testing.T) {
	targets := landmarks.Targets(112)
	tests := []struct {
		name string
		lm   landmarks.Landmarks
		ok   bool
	}{
		{
			name: "canonical crop",
			lm:   landmarks.Landmarks{LeftEye: targets[0], RightEye: targets[1], Nose: targets[2]},
			ok:   true,
		},
		{
			// a plain resize would do; the warp alone shrinks by ~0.4
			name: "300px crop falls back",
			lm: landmarks.Landmarks{
				LeftEye: landmarks.Point{X: 105, Y: 120}, RightEye: landmarks.Point{X: 195, Y: 120},
				Nose: landmarks.Point{X: 150, Y: 170},
			},
			ok: false,
		},
		{
			name: "narrow eyes on a small crop",
			lm: landmarks.Landmarks{
				LeftEye: landmarks.Point{X: 40, Y: 40}, RightEye: landmarks.Point{X: 52, Y: 40},
				Nose: landmarks.Point{X: 46, Y: 48},
			},
			ok: false,
		},
		{
			name: "collinear points",
			lm: landmarks.Landmarks{
				LeftEye: landmarks.Point{X: 10, Y: 10}, RightEye: landmarks.Point{X: 20, Y: 20},
				Nose: landmarks.Point{X: 30, Y: 30},
			},
			ok: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := alignTransform(tt.lm, 112)
			if (err == nil) != tt.ok {
				t.Fatalf("alignTransform error = %v, want ok=%v", err, tt.ok)
			}
			if err != nil {
				return
			}
			defer m.Close()
			sx, sy := affineOf(m).Scales()
			if math.Abs(sx-1) > 1e-3 || math.Abs(sy-1) > 1e-3 {
				t.Errorf("scales = %.4f/%.4f, want 1", sx, sy)
			}
		})
	}
}

func TestShapeMoments(t *testing.T) {
	img := gocv.Zeros(10, 10, gocv.MatTypeCV8U)
	defer img.Close()
	for y := 2; y <= 3; y++ {
		for x := 6; x <= 7; x++ {
			img.SetUCharAt(y, x, 255)
		}
	}

	out := make([]float64, 10)
	shapeMoments(img, out)
	want := []float64{4 * 255 / 100.0, 6.5, 2.5}
	for i, w := range want {
		if math.Abs(out[i]-w) > 1e-9 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], w)
		}
	}

	empty := gocv.Zeros(10, 10, gocv.MatTypeCV8U)
	defer empty.Close()
	zero := make([]float64, 10)
	shapeMoments(empty, zero)
	for i, v := range zero {
		if v != 0 {
			t.Fatalf("blank image wrote out[%d] = %v", i, v)
		}
	}
}
