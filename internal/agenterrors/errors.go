// Package agenterrors defines the agent's semantic error taxonomy.
//
// Errors are plain sentinels compared with errors.Is; callers wrap them
// with fmt.Errorf("%w: ...") to attach context, never construct a parallel
// exception hierarchy.
package agenterrors

import "errors"

var (
	// ErrConsoleAlreadyPaired is returned when pairing is attempted while a
	// console with the same URL is already paired.
	ErrConsoleAlreadyPaired = errors.New("console already paired with this agent")
	// ErrConsoleNotPaired is returned when unpairing is attempted but no
	// matching console is on file.
	ErrConsoleNotPaired = errors.New("console is not paired with this agent")
	// ErrPairingUnreachable is returned when the console returns 500 during pair.
	ErrPairingUnreachable = errors.New("console unreachable during pairing")
	// ErrHeartbeatFailed is returned when the heartbeat endpoint returns non-200.
	ErrHeartbeatFailed = errors.New("agent heartbeat failed")

	// ErrDuplicateConnection is returned by Registry.Add for an existing name.
	ErrDuplicateConnection = errors.New("connection with this name already exists")
	// ErrConnectionNotExist is returned by Registry.Remove for a missing name
	// (Registry.Get returns nil instead).
	ErrConnectionNotExist = errors.New("connection does not exist")
	// ErrForbiddenConnectionName is returned when role code touches the
	// reserved "default" connection name.
	ErrForbiddenConnectionName = errors.New("connection name \"default\" is reserved")

	// ErrEventManagerInitialized is returned by a second Initialize call.
	ErrEventManagerInitialized = errors.New("event manager already initialized")
	// ErrEventManagerNotInitialized is returned when PrepareEvents is called
	// before Initialize.
	ErrEventManagerNotInitialized = errors.New("event manager not initialized")

	// ErrConfigKeyUnknown is returned by AgentConfig.SetValue for a key not
	// on the updatable allow-list.
	ErrConfigKeyUnknown = errors.New("config key is not updatable")
	// ErrConfigKeyImmutable is returned when a known key's value type makes
	// it impossible to coerce the supplied value.
	ErrConfigKeyImmutable = errors.New("config key cannot be set to this value")

	// ErrDetectionMissingLastRun is returned by ShouldRun when a rule has no
	// last_run timestamp to schedule from.
	ErrDetectionMissingLastRun = errors.New("detection rule missing last_run")

	// ErrAuthorizationFailed signals an input-level authentication failure.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrInvalidSeverityType is returned when an event's severity field is
	// neither a string nor a number.
	ErrInvalidSeverityType = errors.New("severity field must be a string or number")
)
