// Package domain defines the table addressing model, per-call context and
// the error kinds shared by the Flight server and client.
package domain

import "fmt"

// InvalidAddressError indicates a table path that does not name a table.
type InvalidAddressError struct {
	Message string
}

func (e *InvalidAddressError) Error() string { return e.Message }

// InvalidTicketError indicates ticket bytes that do not decode.
type InvalidTicketError struct {
	Message string
}

func (e *InvalidTicketError) Error() string { return e.Message }

// NoSuchDatasetError indicates that a catalog lookup matched no table.
type NoSuchDatasetError struct {
	Message string
}

func (e *NoSuchDatasetError) Error() string { return e.Message }

// EngineError wraps a failure reported by the query engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *EngineError) Unwrap() error { return e.Err }

// TransportError wraps a failure to deliver or receive over the wire.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ErrInvalidAddress creates an InvalidAddressError with a formatted message.
func ErrInvalidAddress(format string, args ...interface{}) *InvalidAddressError {
	return &InvalidAddressError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidTicket creates an InvalidTicketError with a formatted message.
func ErrInvalidTicket(format string, args ...interface{}) *InvalidTicketError {
	return &InvalidTicketError{Message: fmt.Sprintf(format, args...)}
}

// ErrNoSuchDataset creates a NoSuchDatasetError with a formatted message.
func ErrNoSuchDataset(format string, args ...interface{}) *NoSuchDatasetError {
	return &NoSuchDatasetError{Message: fmt.Sprintf(format, args...)}
}

// ErrEngine wraps err as an EngineError for the named operation.
func ErrEngine(op string, err error) *EngineError {
	return &EngineError{Op: op, Err: err}
}

// ErrTransport wraps err as a TransportError for the named operation.
func ErrTransport(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
