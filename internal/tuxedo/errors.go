package tuxedo

import (
	"fmt"
)

// AuthError is returned when authentication fails: a transport error or
// any HTTP status above 201.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tuxedo: authentication failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("tuxedo: authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError is returned when a collection fetch fails after authentication.
type FetchError struct {
	Resource string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tuxedo: fetch %s failed with status %d: %v", e.Resource, e.Status, e.Err)
	}
	return fmt.Sprintf("tuxedo: fetch %s failed: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
