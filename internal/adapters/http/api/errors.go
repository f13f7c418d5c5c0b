package api

import "errors"

// Sentinel kinds for request validation errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrImageEmpty    = errors.New("image is empty")
	ErrImageTooLarge = errors.New("image exceeds the size limit")
	ErrImageEncoding = errors.New("image must be base64 or a base64 data URL")
)
