package store

import "fmt"

// StoreError wraps any data-store failure with the operation that hit it.
// The store never retries; callers decide whether the failure is fatal.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrap returns a StoreError for a non-nil err, nil otherwise.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
