package agenterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedSentinelsUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("pair %q: %w", "https://console", ErrConsoleAlreadyPaired)
	assert.True(t, errors.Is(wrapped, ErrConsoleAlreadyPaired))
	assert.False(t, errors.Is(wrapped, ErrConsoleNotPaired))
}

func TestDistinctSentinels(t *testing.T) {
	all := []error{
		ErrConsoleAlreadyPaired, ErrConsoleNotPaired, ErrPairingUnreachable,
		ErrHeartbeatFailed, ErrDuplicateConnection, ErrConnectionNotExist,
		ErrForbiddenConnectionName, ErrEventManagerInitialized,
		ErrEventManagerNotInitialized, ErrConfigKeyUnknown, ErrConfigKeyImmutable,
		ErrDetectionMissingLastRun, ErrAuthorizationFailed, ErrInvalidSeverityType,
	}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
