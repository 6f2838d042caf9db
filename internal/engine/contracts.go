package engine

import "context"

// TextRecognizer is the capability interface shared by Tesseract and
// PaddleOCR. Adding an engine means adding an implementation, not
// touching the processor's control flow.
type TextRecognizer interface {
	Recognize(ctx context.Context, buf []byte) (RecognizeResult, error)
}

type RecognizeResult struct {
	Text       string
	Confidence float64
}

// AlignOptions mirrors the aligner's query parameters.
type AlignOptions struct {
	Mode            string // "classic" | "neural"
	ApplyOCRPrep    bool
	Aggressive      bool
	SimplifyPercent float64
}

type AlignResult struct {
	Warped       []byte
	Preprocessed []byte
}

type ImageAligner interface {
	Align(ctx context.Context, buf []byte, opts AlignOptions) (AlignResult, error)
}
