package directory

import (
	"fmt"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
)

// Registration errors. All are classified as errdefs.ErrValidation.
var (
	ErrInvalidName           = fmt.Errorf("%w: invalid name", errdefs.ErrValidation)
	ErrDuplicateName         = fmt.Errorf("%w: name already registered", errdefs.ErrValidation)
	ErrUnknownCategory       = fmt.Errorf("%w: category not registered", errdefs.ErrValidation)
	ErrUnknownDevice         = fmt.Errorf("%w: device not registered", errdefs.ErrValidation)
	ErrUnknownCounterSet     = fmt.Errorf("%w: counter set not registered", errdefs.ErrValidation)
	ErrConflictingDevice     = fmt.Errorf("%w: category already linked to a different device", errdefs.ErrValidation)
	ErrConflictingCounterSet = fmt.Errorf("%w: category already linked to a different counter set", errdefs.ErrValidation)
	ErrInvalidCounter        = fmt.Errorf("%w: invalid counter", errdefs.ErrValidation)
	ErrUIDSpaceExhausted     = fmt.Errorf("%w: uid space exhausted", errdefs.ErrValidation)
)
