package telemetry

import (
	"errors"
	"fmt"

	"github.com/okian/framecoach/internal/domain/fault"
)

// Parse failures wrap fault.ErrParse so callers can classify them without
// importing this package's sentinels.
var (
	ErrNoPayload    = fmt.Errorf("%w: no JSON object in analyzer output", fault.ErrParse)
	ErrInvalid      = fmt.Errorf("%w: telemetry rejected", fault.ErrParse)
	ErrModeMismatch = errors.New("telemetry does not carry the details for mode")
	ErrUnknownMode  = errors.New("unknown mode")
)
