package domain

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnknownModel       = errors.New("unknown model")
	ErrUnsupportedContent = errors.New("unsupported content")
	ErrUpstream           = errors.New("upstream error")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrStorage            = errors.New("storage error")
	ErrFileTooLarge       = errors.New("file too large")
	ErrNotFound           = errors.New("not found")
)
