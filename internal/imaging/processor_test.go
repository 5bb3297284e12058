package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
)

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		want   float64
	}{
		{"full resolution capture", 4000, 3000, 1.0},
		{"mid resolution capture", 1600, 1200, 0.26},
		{"panorama gets aspect penalty", 4000, 1200, 0.43},
		{"tall crop gets aspect penalty", 1200, 4000, 0.43},
		{"degenerate dimensions", 0, 0, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QualityScore(tt.width, tt.height)
			if got != tt.want {
				t.Errorf("QualityScore(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestAverageQuality(t *testing.T) {
	if got := AverageQuality(nil); got != 0 {
		t.Errorf("AverageQuality(nil) = %v, want 0", got)
	}

	images := []ProcessedImage{
		{QualityScore: 0.8},
		{QualityScore: 0.6},
	}
	if got := AverageQuality(images); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("AverageQuality = %v, want 0.7", got)
	}
}

func encodeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocessKeepsRequestOrder(t *testing.T) {
	small := encodeTestJPEG(t, 120, 90)
	large := encodeTestJPEG(t, 200, 150)

	mux := http.NewServeMux()
	mux.HandleFunc("/small.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(small)
	})
	mux.HandleFunc("/large.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(large)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewProcessor(Config{})
	urls := []string{srv.URL + "/large.jpg", srv.URL + "/small.jpg"}

	images := p.Preprocess(context.Background(), urls)
	if len(images) != 2 {
		t.Fatalf("expected 2 processed images, got %d", len(images))
	}
	if images[0].SourceURL != urls[0] || images[1].SourceURL != urls[1] {
		t.Errorf("processed images lost request order: %v, %v", images[0].SourceURL, images[1].SourceURL)
	}
	if images[0].Width != 200 || images[0].Height != 150 {
		t.Errorf("unexpected output dimensions: %dx%d", images[0].Width, images[0].Height)
	}
	if _, err := base64.StdEncoding.DecodeString(images[0].Base64Data); err != nil {
		t.Errorf("base64 payload does not decode: %v", err)
	}
}

func TestPreprocessDropsFailedFetches(t *testing.T) {
	good := encodeTestJPEG(t, 100, 100)

	mux := http.NewServeMux()
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(good)
	})
	mux.HandleFunc("/missing.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/garbage.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewProcessor(Config{})
	images := p.Preprocess(context.Background(), []string{
		srv.URL + "/missing.jpg",
		srv.URL + "/ok.jpg",
		srv.URL + "/garbage.jpg",
	})

	if len(images) != 1 {
		t.Fatalf("expected 1 surviving image, got %d", len(images))
	}
	if images[0].SourceURL != srv.URL+"/ok.jpg" {
		t.Errorf("wrong image survived: %s", images[0].SourceURL)
	}
}

func TestNormalizeResizesLongEdge(t *testing.T) {
	p := NewProcessor(Config{MaxDimension: 100})

	wide := image.NewRGBA(image.Rect(0, 0, 400, 200))
	out := p.normalize(wide).Bounds()
	if out.Dx() != 100 {
		t.Errorf("wide image long edge = %d, want 100", out.Dx())
	}

	tall := image.NewRGBA(image.Rect(0, 0, 200, 400))
	out = p.normalize(tall).Bounds()
	if out.Dy() != 100 {
		t.Errorf("tall image long edge = %d, want 100", out.Dy())
	}

	fits := image.NewRGBA(image.Rect(0, 0, 80, 60))
	out = p.normalize(fits).Bounds()
	if out.Dx() != 80 || out.Dy() != 60 {
		t.Errorf("image within bounds was resized to %dx%d", out.Dx(), out.Dy())
	}
}
