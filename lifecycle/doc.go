// Package lifecycle sequences the region lifecycle of a VM instance around
// its start and stop.
//
//	Unprovisioned --CreateImage--> ImageStaged --Activate--> RegionProgrammed
//	RegionProgrammed --Deactivate--> RegionReleased --DestroyImages--> Unprovisioned
//
// An instance is bound to exactly one region, selected by the MAC address of
// its first network interface. Further interfaces are named but otherwise
// ignored.
//
// The controller is the single place where protocol outcomes become errors:
// a subagent answer other than ACK/SUCCESS, including a degraded outcome,
// becomes a *RegionProgramError or *RegionReleaseError, while connection and
// address errors from the region client are passed through wrapped.
package lifecycle
