package molekule

import (
	"errors"
	"fmt"
)

// errNoDeviceData marks a tick where the API answered but carried no
// usable device payload.
var errNoDeviceData = errors.New("molekule api returned no device data")

// AuthError reports an authentication failure against the cloud.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("molekule auth failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnError reports that the request pipeline exhausted its attempts.
type ConnError struct {
	Attempts int
	Err      error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("molekule api unreachable after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("molekule api unreachable after %d attempts", e.Attempts)
}

func (e *ConnError) Unwrap() error { return e.Err }
