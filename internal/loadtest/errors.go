package loadtest

import "errors"

var (
	ErrConfig     = errors.New("invalid load test config")
	ErrUnhealthy  = errors.New("service is not healthy")
	ErrStatus     = errors.New("unexpected response status")
	ErrNotSettled = errors.New("session did not settle")
	ErrViolations = errors.New("sessions settled on a stale frame")
)
