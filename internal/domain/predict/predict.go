// Package predict defines the contract for classifying an uploaded image and
// ships a simulated classifier standing in for the real model service.
package predict

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Labels produced by the classifier, in output order.
const (
	LabelNormal    = "normal"
	LabelPneumonia = "pneumonia"
	LabelCOVID19   = "COVID-19"
)

// Labels lists the classes in the order the confidence string reports them.
var Labels = []string{LabelNormal, LabelPneumonia, LabelCOVID19}

var displayNames = []string{"Normal", "Pneumonia", "COVID-19"}

const (
	defaultMinLatency = 200 * time.Millisecond
	defaultMaxLatency = 800 * time.Millisecond
	defaultRandomSeed = 42
)

// ErrEmptyImage is returned when there is nothing to classify.
var ErrEmptyImage = errors.New("empty image")

// Input is what the classifier needs from a job.
type Input struct {
	ImageName string
	Data      []byte
}

// Prediction is the outcome for one image. Confidence is the formatted
// multi-class string pushed to the client, Scores the raw distribution.
type Prediction struct {
	ImageName  string
	Label      string
	Confidence string
	Scores     []float64
}

// Predictor classifies an image.
type Predictor interface {
	// Predict honours ctx for cancellation.
	Predict(ctx context.Context, in Input) (Prediction, error)
}

// Option applies a configuration option to the SimulatedPredictor.
type Option func(*SimulatedPredictor)

// WithLatencyRange sets the simulated inference latency range.
// A zero range disables the delay.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(p *SimulatedPredictor) {
		if minLatency >= 0 && maxLatency >= minLatency {
			p.minLatency = minLatency
			p.maxLatency = maxLatency
		}
	}
}

// WithSeed seeds the latency jitter.
func WithSeed(seed int64) Option {
	return func(p *SimulatedPredictor) {
		p.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // jitter only
	}
}

// SimulatedPredictor derives a stable class distribution from the image
// bytes, so the same image always gets the same answer.
type SimulatedPredictor struct {
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedPredictor creates a predictor with configuration options.
func NewSimulatedPredictor(opts ...Option) *SimulatedPredictor {
	p := &SimulatedPredictor{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict classifies in after a simulated delay.
func (p *SimulatedPredictor) Predict(ctx context.Context, in Input) (Prediction, error) {
	if len(in.Data) == 0 {
		return Prediction{}, fmt.Errorf("predict %s: %w", in.ImageName, ErrEmptyImage)
	}

	if latency := p.latency(); latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Prediction{}, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	scores := distribution(in.Data)
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}

	return Prediction{
		ImageName:  in.ImageName,
		Label:      Labels[best],
		Confidence: FormatConfidence(scores),
		Scores:     scores,
	}, nil
}

func (p *SimulatedPredictor) latency() time.Duration {
	span := p.maxLatency - p.minLatency
	if span <= 0 {
		return p.minLatency
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minLatency + time.Duration(p.rng.Int63n(int64(span)))
}

// FormatConfidence renders scores as "Normal: 0.912, Pneumonia: 0.071, COVID-19: 0.017".
func FormatConfidence(scores []float64) string {
	out := ""
	for i, name := range displayNames {
		if i > 0 {
			out += ", "
		}
		v := 0.0
		if i < len(scores) {
			v = scores[i]
		}
		out += fmt.Sprintf("%s: %.3f", name, v)
	}
	return out
}

// distribution turns the image digest into a softmax over the labels.
func distribution(data []byte) []float64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	sum := h.Sum64()

	logits := make([]float64, len(Labels))
	total := 0.0
	for i := range logits {
		// 16 bits per class, scaled into [0, 4).
		raw := float64((sum>>(16*uint(i)))&0xffff) / 0xffff * 4
		logits[i] = math.Exp(raw)
		total += logits[i]
	}
	for i := range logits {
		logits[i] /= total
	}
	return logits
}
