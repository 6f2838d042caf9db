package errs

import "errors"

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrValidation       = errors.New("validation error")
	ErrAllEnginesFailed = errors.New("all ocr engines failed")
)
