package lifecycle

import "fmt"

// NetworkInterface is one virtual NIC attached to an instance.
type NetworkInterface struct {
	MAC string
}

// Binding pairs an interface name with the MAC address that selects the
// instance's region.
type Binding struct {
	Name string
	MAC  string
}

// Instance is the context carried between lifecycle phases of one VM. It is
// built by DefineInstance and filled in as phases complete. It is not
// persisted.
type Instance struct {
	Name      string
	UserID    string
	ProjectID string

	// Workspace is the per-instance directory holding the staged image.
	Workspace string

	// ImagePath is set once CreateImage has staged the bitstream.
	ImagePath string

	// Network lists the instance's interfaces in enumeration order.
	Network []NetworkInterface
}

// ImageMeta describes the image to stage for an instance.
type ImageMeta struct {
	ID string
}

// ResolveBindings names interfaces eth0, eth1, ... in order. An empty network
// yields an empty, non-nil slice.
func ResolveBindings(network []NetworkInterface) []Binding {
	bindings := make([]Binding, 0, len(network))
	for i, nic := range network {
		bindings = append(bindings, Binding{
			Name: fmt.Sprintf("eth%d", i),
			MAC:  nic.MAC,
		})
	}
	return bindings
}

// primaryBinding returns the binding whose MAC selects the region. Only one
// region is bound per instance, so interfaces after the first are not used.
func primaryBinding(bindings []Binding) (Binding, error) {
	if len(bindings) == 0 {
		return Binding{}, ErrNoBindings
	}
	return bindings[0], nil
}
