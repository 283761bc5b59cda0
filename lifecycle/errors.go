package lifecycle

import (
	"errors"
	"fmt"

	"github.com/savi/fpgavirt/region"
)

var (
	// ErrNoBindings is returned by region operations on an instance without
	// network interfaces.
	ErrNoBindings = errors.New("lifecycle: instance has no network interfaces")

	// ErrImageNotStaged is returned by Activate before CreateImage succeeded.
	ErrImageNotStaged = errors.New("lifecycle: image not staged")

	// ErrImageTooLarge is returned by CreateImage when the staged image
	// exceeds the configured limit.
	ErrImageTooLarge = errors.New("lifecycle: image too large")
)

// RegionProgramError is returned when the subagent did not confirm that a
// region was programmed.
type RegionProgramError struct {
	Node    string
	MAC     string
	Outcome region.Outcome
}

func (e *RegionProgramError) Error() string {
	return fmt.Sprintf("lifecycle: programming region %s on %s failed: %s", e.MAC, e.Node, e.Outcome.Message)
}

// RegionReleaseError is returned when the subagent did not confirm that a
// region was released.
type RegionReleaseError struct {
	Node    string
	MAC     string
	Outcome region.Outcome
}

func (e *RegionReleaseError) Error() string {
	return fmt.Sprintf("lifecycle: releasing region %s on %s failed: %s", e.MAC, e.Node, e.Outcome.Message)
}
