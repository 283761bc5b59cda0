package region

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand is returned when Execute is given a command other
	// than Program or Release.
	ErrUnknownCommand = errors.New("region: unknown command")

	// ErrShortPayload is returned when the bitstream yields fewer bytes than
	// were announced in the size line.
	ErrShortPayload = errors.New("region: bitstream shorter than announced size")
)

// ConnectionError is returned when the subagent cannot be reached or the
// connection fails mid-exchange for a reason other than a timeout.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("region: connection to subagent %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FormatError is returned when a node address is not of the form host:port.
type FormatError struct {
	Addr string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("region: malformed subagent address: %v", e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// ImageError is returned when the bitstream to program cannot be read.
type ImageError struct {
	Path string
	Err  error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("region: bitstream %s: %v", e.Path, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
