package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class error
		fatal bool
	}{
		{"protocol", Protocolf("bad magic %#x", 0x1234), ErrProtocol, true},
		{"transport", Transportf("poll: %v", "EBADF"), ErrTransport, true},
		{"validation", Validationf("name %q", ""), ErrValidation, false},
		{"counter read", CounterReadf("uid %d", 7), ErrCounterRead, false},
		{"timeout", ErrTimeout, ErrTimeout, false},
		{"wrapped protocol", fmt.Errorf("session: %w", Protocolf("x")), ErrProtocol, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.class))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestMessageIncludesClass(t *testing.T) {
	err := Protocolf("bad magic %#x", 0x1234)
	assert.Equal(t, "protocol error: bad magic 0x1234", err.Error())
}
