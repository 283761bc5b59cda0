package lifecycle

import (
	"context"
	"os"
	"path/filepath"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/savi/fpgavirt/imagestore"
	"github.com/savi/fpgavirt/log"
	"github.com/savi/fpgavirt/region"
	"github.com/sirupsen/logrus"
)

// diskName is the name of the staged bitstream inside an instance workspace.
const diskName = "disk"

// Controller drives the phases of an instance's region lifecycle.
//
// Phases are invoked by the caller in order: CreateImage, Activate and
// ActivateNode when the instance starts; DeactivateNode, Deactivate and
// DestroyImages when it is torn down. None of them retry.
type Controller interface {
	// CreateImage stages the instance's bitstream in its workspace.
	CreateImage(ctx context.Context, inst *Instance, meta ImageMeta, creds imagestore.Credentials) error

	// DestroyImages removes the instance workspace. It never fails.
	DestroyImages(ctx context.Context, inst *Instance)

	// Activate programs the instance's region with the staged bitstream.
	Activate(ctx context.Context, inst *Instance, node region.Node) error

	// Deactivate releases the instance's region.
	Deactivate(ctx context.Context, inst *Instance, node region.Node) error

	// ActivateNode and DeactivateNode are hardware-slot hooks run around
	// region programming.
	ActivateNode(ctx context.Context, inst *Instance, node region.Node) error
	DeactivateNode(ctx context.Context, inst *Instance, node region.Node) error
}

// RegionClient is the part of *region.Client used by the controller.
type RegionClient interface {
	Program(ctx context.Context, mac string, node region.Node, imagePath string) (region.Outcome, error)
	Release(ctx context.Context, mac string, node region.Node) (region.Outcome, error)
}

// Config provides values for a RegionController.
type Config struct {
	// Client talks to subagents.
	Client RegionClient

	// Store fetches images that are not yet staged.
	Store imagestore.Store

	// InstancesPath is the parent of every instance workspace.
	InstancesPath string

	// MaxImageSize rejects staged images larger than this many bytes. Zero
	// means no limit.
	MaxImageSize int64

	// Logger is discarded when nil.
	Logger *logrus.Entry

	// Clock defaults to the real clock.
	Clock clock.Clock
}

func (c *Config) validate() error {
	if c.Client == nil {
		return errors.New("lifecycle: config: Client required")
	}
	if c.Store == nil {
		return errors.New("lifecycle: config: Store required")
	}
	if c.InstancesPath == "" {
		return errors.New("lifecycle: config: InstancesPath required")
	}
	if c.MaxImageSize < 0 {
		return errors.New("lifecycle: config: MaxImageSize must not be negative")
	}
	return nil
}

// RegionController implements Controller on top of a region client and an
// image store. It holds no per-instance state; everything an instance needs
// between phases lives in its *Instance.
type RegionController struct {
	client        RegionClient
	store         imagestore.Store
	instancesPath string
	maxImageSize  int64
	logger        *logrus.Entry
	clock         clock.Clock
}

var _ Controller = &RegionController{}

// NewRegionController returns a controller configured by config.
func NewRegionController(config Config) (*RegionController, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	return &RegionController{
		client:        config.Client,
		store:         config.Store,
		instancesPath: config.InstancesPath,
		maxImageSize:  config.MaxImageSize,
		logger:        log.OrDiscard(config.Logger),
		clock:         clk,
	}, nil
}

// DefineInstance builds the context for an instance named name.
func (c *RegionController) DefineInstance(name, userID, projectID string, network []NetworkInterface) *Instance {
	return &Instance{
		Name:      name,
		UserID:    userID,
		ProjectID: projectID,
		Workspace: filepath.Join(c.instancesPath, name),
		Network:   network,
	}
}

func (c *RegionController) instanceLogger(inst *Instance) *logrus.Entry {
	return c.logger.WithField("instance", inst.Name)
}

// CreateImage ensures the workspace exists and stages the bitstream into it,
// fetching it only if it is not already there. Errors from the image store
// are returned unchanged.
func (c *RegionController) CreateImage(ctx context.Context, inst *Instance, meta ImageMeta, creds imagestore.Credentials) error {
	logger := c.instanceLogger(inst).WithField("image", meta.ID)

	if err := os.MkdirAll(inst.Workspace, 0o755); err != nil {
		return errors.Wrapf(err, "creating workspace %s", inst.Workspace)
	}

	target := filepath.Join(inst.Workspace, diskName)
	logger.WithField("target", target).Debug("fetching image")

	start := c.clock.Now()
	if err := imagestore.Cache(ctx, c.store, target, meta.ID, creds); err != nil {
		logger.WithError(err).Error("fetching image failed")
		return err
	}

	fi, err := os.Stat(target)
	if err != nil {
		return errors.Wrapf(err, "inspecting staged image %s", target)
	}
	if c.maxImageSize > 0 && fi.Size() > c.maxImageSize {
		// an oversized image must not count as staged on the next attempt.
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("removing oversized image failed")
		}
		return errors.Wrapf(ErrImageTooLarge, "%s is %s, limit is %s", target,
			units.BytesSize(float64(fi.Size())), units.BytesSize(float64(c.maxImageSize)))
	}

	inst.ImagePath = target
	logger.WithFields(logrus.Fields{
		"size":     units.BytesSize(float64(fi.Size())),
		"duration": c.clock.Since(start),
	}).Debug("image staged")
	return nil
}

// DestroyImages removes the instance workspace. A missing workspace is not an
// error, and removal failures are only logged, so teardown may be repeated.
func (c *RegionController) DestroyImages(ctx context.Context, inst *Instance) {
	logger := c.instanceLogger(inst)
	if err := os.RemoveAll(inst.Workspace); err != nil {
		logger.WithError(err).Warn("removing workspace failed")
	}
	inst.ImagePath = ""
	logger.Debug("workspace removed")
}

// Activate programs the region selected by the instance's first interface
// with the staged bitstream.
func (c *RegionController) Activate(ctx context.Context, inst *Instance, node region.Node) error {
	if inst.ImagePath == "" {
		return ErrImageNotStaged
	}
	return c.ProgramRegion(ctx, inst.ImagePath, node, ResolveBindings(inst.Network))
}

// Deactivate releases the region selected by the instance's first interface.
func (c *RegionController) Deactivate(ctx context.Context, inst *Instance, node region.Node) error {
	return c.ReleaseRegion(ctx, node, ResolveBindings(inst.Network))
}

// ProgramRegion programs the region selected by the first binding with the
// bitstream at imagePath. Connection and address errors from the client are
// returned wrapped; anything short of ACK/SUCCESS is a *RegionProgramError.
func (c *RegionController) ProgramRegion(ctx context.Context, imagePath string, node region.Node, bindings []Binding) error {
	binding, err := primaryBinding(bindings)
	if err != nil {
		return err
	}

	logger := c.logger.WithFields(logrus.Fields{
		"node":       node.Addr,
		"mac":        binding.MAC,
		"interfaces": len(bindings),
	})
	logger.Debug("programming region")

	outcome, err := c.client.Program(ctx, binding.MAC, node, imagePath)
	if err != nil {
		logger.WithError(err).Error("failed to reach subagent")
		return errors.Wrap(err, "programming region")
	}
	if !outcome.OK() {
		logger.WithField("outcome", outcome).Error("region program failed")
		return &RegionProgramError{Node: node.Addr, MAC: binding.MAC, Outcome: outcome}
	}

	logger.Debug("region programmed")
	return nil
}

// ReleaseRegion releases the region selected by the first binding, with the
// same error translation as ProgramRegion.
func (c *RegionController) ReleaseRegion(ctx context.Context, node region.Node, bindings []Binding) error {
	binding, err := primaryBinding(bindings)
	if err != nil {
		return err
	}

	logger := c.logger.WithFields(logrus.Fields{
		"node":       node.Addr,
		"mac":        binding.MAC,
		"interfaces": len(bindings),
	})
	logger.Debug("releasing region")

	outcome, err := c.client.Release(ctx, binding.MAC, node)
	if err != nil {
		logger.WithError(err).Error("failed to reach subagent")
		return errors.Wrap(err, "releasing region")
	}
	if !outcome.OK() {
		logger.WithField("outcome", outcome).Error("region release failed")
		return &RegionReleaseError{Node: node.Addr, MAC: binding.MAC, Outcome: outcome}
	}

	logger.Debug("region released")
	return nil
}

// ActivateNode does nothing yet.
func (c *RegionController) ActivateNode(ctx context.Context, inst *Instance, node region.Node) error {
	return nil
}

// DeactivateNode does nothing yet.
func (c *RegionController) DeactivateNode(ctx context.Context, inst *Instance, node region.Node) error {
	return nil
}
