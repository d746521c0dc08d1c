package errors

import sterrors "errors"

var (
	ErrBrokerRequired      = sterrors.New("localbroker: broker is required")
	ErrServiceRequired     = sterrors.New("localbroker: service instance is required")
	ErrServiceNameRequired = sterrors.New("localbroker: service name is required")
	ErrMethodNotFound      = sterrors.New("localbroker: method not found")
	ErrStartupFailed       = sterrors.New("localbroker: service startup failed")
	ErrListenerRequired    = sterrors.New("localbroker: listener is required")
	ErrEventNameRequired   = sterrors.New("localbroker: event name is required")
	ErrDirectoryRequired   = sterrors.New("localbroker: node directory is required")
	ErrPublisherRequired   = sterrors.New("localbroker: publisher is required")
	ErrSubscriberRequired  = sterrors.New("localbroker: subscriber is required")
	ErrTopicRequired       = sterrors.New("localbroker: topic is required")
	ErrConfigRequired      = sterrors.New("localbroker: configuration is required")
)

// ConfigValidationError marks an error produced while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "localbroker: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
