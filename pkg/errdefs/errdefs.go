// Package errdefs defines the error taxonomy shared by every pulse package.
//
// Errors are classified with errors.Is against the sentinels below. Packages
// wrap them with their own, more specific sentinels:
//
//	var ErrUnknownCommand = fmt.Errorf("%w: unknown command", errdefs.ErrProtocol)
//
// Classification:
//   - ErrTimeout: no data within the requested wait. Recoverable.
//   - ErrProtocol: malformed magic, header or body; unknown command. Connection-fatal.
//   - ErrTransport: socket read/write/poll failure. Connection-fatal.
//   - ErrValidation: rejected directory registration. Local to the call.
//   - ErrCounterRead: a single counter value could not be read. The sample skips it.
//   - ErrBufferExhausted: no packet buffer could be reserved.
package errdefs

import (
	"errors"
	"fmt"
)

// Error classes.
var (
	ErrTimeout         = errors.New("timeout")
	ErrProtocol        = errors.New("protocol error")
	ErrTransport       = errors.New("transport error")
	ErrValidation      = errors.New("validation error")
	ErrCounterRead     = errors.New("counter read error")
	ErrBufferExhausted = errors.New("buffer exhausted")
)

// Protocolf returns an error classified as ErrProtocol.
func Protocolf(format string, args ...any) error {
	return classify(ErrProtocol, format, args...)
}

// Transportf returns an error classified as ErrTransport.
func Transportf(format string, args ...any) error {
	return classify(ErrTransport, format, args...)
}

// Validationf returns an error classified as ErrValidation.
func Validationf(format string, args ...any) error {
	return classify(ErrValidation, format, args...)
}

// CounterReadf returns an error classified as ErrCounterRead.
func CounterReadf(format string, args ...any) error {
	return classify(ErrCounterRead, format, args...)
}

func classify(class error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", class, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err must end the connection that observed it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, ErrTransport)
}
