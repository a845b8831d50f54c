package pageutil

// Validatable is implemented by types that can run internal consistency
// checks on themselves. When the implementation is functioning correctly it
// should not be possible for Validate to return an error, but it may assist
// in diagnosing issues with the implementation.
type Validatable interface {
	Validate() error
}
