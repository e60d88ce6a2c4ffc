package service

import "errors"

// Sentinel errors for the service layer.
var (
	ErrNotFound            = errors.New("record not found")
	ErrGenerationExhausted = errors.New("identifier generation exhausted its retry budget")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrInvalidURL          = errors.New("invalid target URL")
	ErrLinkExhausted       = errors.New("link click limit reached")
	ErrLinkExpired         = errors.New("link has expired")
	ErrInvalidToken        = errors.New("invalid API token")
	ErrUnknownUploader     = errors.New("unsupported uploader tool")
)
