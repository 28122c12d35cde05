// Package inference defines the contract between the analysis pipeline and a model runtime.
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// ErrUnavailable means no model is loaded or the runtime failed to produce an output
var ErrUnavailable = errors.New("inference unavailable")

// Runner executes the keypoint model on a [1,3,S,S] input tensor
type Runner interface {
	Run(ctx context.Context, input types.Tensor) (types.Tensor, error)
	Close() error
}

// Unavailable is a Runner standing in for a model that failed to load
type Unavailable struct {
	Reason error
}

// NewUnavailable records why the model could not be loaded
func NewUnavailable(reason error) *Unavailable {
	return &Unavailable{Reason: reason}
}

func (u *Unavailable) Run(context.Context, types.Tensor) (types.Tensor, error) {
	if u.Reason == nil {
		return types.Tensor{}, ErrUnavailable
	}
	return types.Tensor{}, fmt.Errorf("%w: %v", ErrUnavailable, u.Reason)
}

func (u *Unavailable) Close() error { return nil }

// Available reports whether r can be expected to run the model
func Available(r Runner) bool {
	switch v := r.(type) {
	case nil:
		return false
	case *Unavailable:
		return false
	case *Serial:
		return Available(v.runner)
	default:
		return true
	}
}

// Serial runs one inference at a time on a shared session; callers queue on the lock
type Serial struct {
	mu     sync.Mutex
	runner Runner
}

// NewSerial wraps r so that concurrent callers never overlap inside the runtime
func NewSerial(r Runner) *Serial {
	return &Serial{runner: r}
}

func (s *Serial) Run(ctx context.Context, input types.Tensor) (types.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return types.Tensor{}, ErrUnavailable
	}
	return s.runner.Run(ctx, input)
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return nil
	}
	return s.runner.Close()
}
