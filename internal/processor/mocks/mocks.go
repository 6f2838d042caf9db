// Package mocks provides hand-written test doubles for the engine
// capability interfaces Pipeline depends on.
package mocks

import (
	"context"

	"github.com/dkrasnov/receipt-gateway/internal/engine"
)

type Aligner struct {
	AlignFunc func(ctx context.Context, buf []byte, opts engine.AlignOptions) (engine.AlignResult, error)
}

func (m *Aligner) Align(ctx context.Context, buf []byte, opts engine.AlignOptions) (engine.AlignResult, error) {
	if m.AlignFunc != nil {
		return m.AlignFunc(ctx, buf, opts)
	}
	return engine.AlignResult{Warped: buf, Preprocessed: buf}, nil
}

type Recognizer struct {
	RecognizeFunc func(ctx context.Context, buf []byte) (engine.RecognizeResult, error)
	Calls         int
}

func (m *Recognizer) Recognize(ctx context.Context, buf []byte) (engine.RecognizeResult, error) {
	m.Calls++
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, buf)
	}
	return engine.RecognizeResult{}, nil
}
