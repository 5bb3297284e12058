package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/webp"

	"github.com/instabids/smartscope/internal/metrics"
	"github.com/instabids/smartscope/pkg/logger"
)

// ProcessedImage is an image prepared for the vision model. It is created
// per-request and discarded after the model call.
type ProcessedImage struct {
	SourceURL    string
	Base64Data   string
	Width        int
	Height       int
	QualityScore float64
}

type Config struct {
	FetchTimeout time.Duration
	MaxDimension int
	JPEGQuality  int
}

// Processor fetches and normalizes field photos prior to vision analysis.
type Processor struct {
	client       *http.Client
	maxDimension int
	jpegQuality  int
}

func NewProcessor(cfg Config) *Processor {
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = 1600
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 90
	}

	return &Processor{
		client:       &http.Client{Timeout: cfg.FetchTimeout},
		maxDimension: cfg.MaxDimension,
		jpegQuality:  cfg.JPEGQuality,
	}
}

// Preprocess fetches and normalizes all URLs concurrently and waits for every
// one to finish. Individual failures drop the image; survivors keep their
// request order.
func (p *Processor) Preprocess(ctx context.Context, urls []string) []ProcessedImage {
	results := make([]*ProcessedImage, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			img, err := p.processSingle(ctx, url)
			if err != nil {
				metrics.ImagesDropped.Inc()
				logger.Warn("Image dropped from analysis batch",
					zap.String("url", url),
					zap.Error(err),
				)
				return
			}
			results[idx] = img
		}(i, url)
	}
	wg.Wait()

	processed := make([]ProcessedImage, 0, len(urls))
	for _, img := range results {
		if img != nil {
			processed = append(processed, *img)
		}
	}

	metrics.ImagesProcessed.Add(float64(len(processed)))
	return processed
}

func (p *Processor) processSingle(ctx context.Context, url string) (*ProcessedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	quality := QualityScore(bounds.Dx(), bounds.Dy())

	normalized := p.normalize(img)

	var buf bytes.Buffer
	err = imaging.Encode(&buf, normalized, imaging.JPEG, imaging.JPEGQuality(p.jpegQuality))
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	out := normalized.Bounds()
	return &ProcessedImage{
		SourceURL:    url,
		Base64Data:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:        out.Dx(),
		Height:       out.Dy(),
		QualityScore: quality,
	}, nil
}

// normalize downsizes oversized captures and compensates for poor field
// lighting with a mild brightness and contrast lift.
func (p *Processor) normalize(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > p.maxDimension || h > p.maxDimension {
		if w >= h {
			img = imaging.Resize(img, p.maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, p.maxDimension, imaging.Lanczos)
		}
	}

	img = imaging.AdjustBrightness(img, 5)
	img = imaging.AdjustContrast(img, 10)

	return img
}

// decodeImage decodes common photo formats, applying EXIF orientation, with a
// WebP fallback for captures from older phones.
func decodeImage(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("unknown or unsupported image format")
}

// QualityScore estimates how usable a capture is for analysis from its source
// dimensions. Resolution drives the score; extreme aspect ratios are
// penalised because they usually crop out context.
func QualityScore(width, height int) float64 {
	megapixels := float64(width*height) / 1_000_000

	longEdge := float64(width)
	shortEdge := float64(height)
	if height > width {
		longEdge, shortEdge = shortEdge, longEdge
	}
	if shortEdge < 1 {
		shortEdge = 1
	}

	penalty := 1.0
	if longEdge/shortEdge > 2.2 {
		penalty = 0.85
	}

	score := math.Min(1.0, 0.1+megapixels/12) * penalty
	return math.Round(score*100) / 100
}

// AverageQuality returns the mean quality score across processed images,
// or 0 when none survived.
func AverageQuality(images []ProcessedImage) float64 {
	if len(images) == 0 {
		return 0
	}
	var sum float64
	for _, img := range images {
		sum += img.QualityScore
	}
	return sum / float64(len(images))
}
