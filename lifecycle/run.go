package lifecycle

import (
	"context"

	"github.com/savi/fpgavirt/imagestore"
	"github.com/savi/fpgavirt/log"
	"github.com/savi/fpgavirt/region"
	"github.com/sirupsen/logrus"
)

// State is where an instance is in its region lifecycle.
type State int

const (
	Unprovisioned State = iota
	ImageStaged
	RegionProgrammed
	RegionReleased
)

func (s State) String() string {
	switch s {
	case Unprovisioned:
		return "unprovisioned"
	case ImageStaged:
		return "image-staged"
	case RegionProgrammed:
		return "region-programmed"
	case RegionReleased:
		return "region-released"
	}
	return "unknown"
}

// Reporter is called back as an instance moves between states. If Report
// returns an error, the running phase sequence stops.
type Reporter interface {
	Report(ctx context.Context, inst *Instance, state State, msg string) error
}

// Run provisions an instance: the image is staged, then the region is
// programmed and the hardware slot activated. It stops at the first failure
// and leaves whatever was done in place.
func Run(ctx context.Context, ctlr Controller, inst *Instance, meta ImageMeta, creds imagestore.Credentials, node region.Node, reporter Reporter) error {
	if err := ctlr.CreateImage(ctx, inst, meta, creds); err != nil {
		return err
	}

	if err := report(ctx, reporter, inst, ImageStaged, "image staged"); err != nil {
		return err
	}

	if err := ctlr.Activate(ctx, inst, node); err != nil {
		return err
	}

	if err := ctlr.ActivateNode(ctx, inst, node); err != nil {
		return err
	}

	return report(ctx, reporter, inst, RegionProgrammed, "region programmed")
}

// Remove tears an instance down: the hardware slot is deactivated, the region
// released, then the workspace removed. If the region cannot be released the
// workspace is kept so the teardown can be retried.
func Remove(ctx context.Context, ctlr Controller, inst *Instance, node region.Node, reporter Reporter) error {
	if err := ctlr.DeactivateNode(ctx, inst, node); err != nil {
		return err
	}

	if err := ctlr.Deactivate(ctx, inst, node); err != nil {
		log.G(ctx).WithError(err).Error("release failed")
		return err
	}

	if err := report(ctx, reporter, inst, RegionReleased, "region released"); err != nil {
		return err
	}

	ctlr.DestroyImages(ctx, inst)

	return report(ctx, reporter, inst, Unprovisioned, "finalized")
}

func report(ctx context.Context, reporter Reporter, inst *Instance, state State, msg string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(
		logrus.Fields{
			"instance":   inst.Name,
			"state":      state,
			"status.msg": msg}))
	log.G(ctx).Debug("report status")
	return reporter.Report(ctx, inst, state, msg)
}
