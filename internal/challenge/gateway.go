// Package challenge turns image challenges into text through a recognition
// model that is not safe for concurrent use.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Model is the trained recognition function. Infer receives a preprocessed
// image and returns per-timestep class scores (T x C), where the last class is
// the CTC blank.
type Model interface {
	InputSize() (width, height int)
	Infer(ctx context.Context, img Tensor) ([][]float32, error)
}

// DecodeError reports bytes that are not a decodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode challenge image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err carries a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Gateway serializes access to the model. Preprocessing runs inside the same
// critical section so a burst of callers cannot pile decoded images up in
// memory while waiting.
type Gateway struct {
	mu     sync.Mutex
	model  Model
	vocab  []rune
	logger *slog.Logger
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway wraps model. vocab lists the characters in class order.
func NewGateway(model Model, vocab string, opts ...Option) (*Gateway, error) {
	if model == nil {
		return nil, errors.New("challenge model is required")
	}
	if vocab == "" {
		return nil, errors.New("challenge vocabulary is required")
	}
	g := &Gateway{
		model: model,
		vocab: []rune(vocab),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Solve decodes img, resizes it to the model input, runs inference and returns
// the best-path text. Engine errors are returned unchanged.
func (g *Gateway) Solve(ctx context.Context, img []byte) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	width, height := g.model.InputSize()
	tensor, err := Preprocess(img, width, height)
	if err != nil {
		return "", err
	}
	scores, err := g.model.Infer(ctx, tensor)
	if err != nil {
		return "", err
	}
	text := BestPath(scores, g.vocab)
	if g.logger != nil {
		g.logger.DebugContext(ctx, "challenge solved",
			"length", len([]rune(text)),
			"duration", time.Since(start),
		)
	}
	return text, nil
}
