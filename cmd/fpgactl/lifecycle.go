package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	events "github.com/docker/go-events"
	"github.com/docker/go-units"
	"github.com/savi/fpgavirt/imagestore"
	"github.com/savi/fpgavirt/lifecycle"
	"github.com/savi/fpgavirt/log"
	"github.com/savi/fpgavirt/region"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultInstancesPath = "/var/lib/fpgavirt/instances"

func newProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Stage an instance's bitstream and program its region",
		Long: `Create the instance workspace, fetch the bitstream from the image
store unless it is already staged, and program the region selected by the
first --mac on the subagent at --node.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) != 0 {
				return errors.New("provision command takes no arguments")
			}

			flags := cmd.Flags()
			imageID, err := flags.GetString("image")
			if err != nil {
				return err
			}
			if imageID == "" {
				return errors.New("--image is required")
			}
			creds, err := parseCredentials(flags)
			if err != nil {
				return err
			}

			s, ctlr, inst, node, err := setupInstance(cmd, "provision")
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			reporter, done, err := newReporter(cmd)
			if err != nil {
				return err
			}
			err = lifecycle.Run(s.ctx, ctlr, inst, lifecycle.ImageMeta{ID: imageID}, creds, node, reporter)
			if derr := done(); err == nil {
				err = derr
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: region %s programmed on %s\n", inst.Name, inst.Network[0].MAC, node)
			return nil
		},
	}

	addInstanceFlags(cmd.Flags())
	flags := cmd.Flags()
	flags.String("image", "", "Image id of the bitstream")
	flags.String("user", "", "User id the image is fetched for")
	flags.String("project", "", "Project id the image is fetched for")
	flags.String("token", os.Getenv("FPGAVIRT_TOKEN"), "Image service token (default $FPGAVIRT_TOKEN)")
	flags.String("max-image-size", "", "Refuse bitstreams larger than this, e.g. 64MiB")
	return cmd
}

func newTeardownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Release an instance's region and remove its workspace",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) != 0 {
				return errors.New("teardown command takes no arguments")
			}

			s, ctlr, inst, node, err := setupInstance(cmd, "teardown")
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			reporter, done, err := newReporter(cmd)
			if err != nil {
				return err
			}
			err = lifecycle.Remove(s.ctx, ctlr, inst, node, reporter)
			if derr := done(); err == nil {
				err = derr
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: region %s released on %s\n", inst.Name, inst.Network[0].MAC, node)
			return nil
		},
	}

	addInstanceFlags(cmd.Flags())
	return cmd
}

func addInstanceFlags(flags *pflag.FlagSet) {
	flags.String("instances-path", defaultInstancesPath, "Directory holding per-instance workspaces")
	flags.String("name", "", "Instance name")
	flags.StringSlice("mac", nil, "MAC address of an instance interface, in interface order (repeatable)")
	flags.String("node", "", "Subagent address (host:port)")
	flags.String("image-endpoint", "", "Image service endpoint to fetch bitstreams from")
	flags.String("image-dir", "", "Directory to copy bitstreams from, instead of an image service")
	flags.Bool("progress", false, "Print each state change to stderr")
}

// newReporter returns the reporter for a lifecycle run. With --progress,
// state changes are also queued to a sink printing them on stderr; done
// flushes and closes that queue.
func newReporter(cmd *cobra.Command) (lifecycle.Reporter, func() error, error) {
	progress, err := cmd.Flags().GetBool("progress")
	if err != nil {
		return nil, nil, err
	}
	if !progress {
		return lifecycle.LogReporter{}, func() error { return nil }, nil
	}

	queue := events.NewQueue(progressSink{w: cmd.ErrOrStderr()})
	return lifecycle.MultiReporter(lifecycle.LogReporter{}, lifecycle.NewEventReporter(queue, nil)), queue.Close, nil
}

// progressSink prints lifecycle state events, one per line.
type progressSink struct {
	w io.Writer
}

func (s progressSink) Write(event events.Event) error {
	ev, ok := event.(lifecycle.StateEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	_, err := fmt.Fprintf(s.w, "%s %s: %s (%s)\n", ev.Timestamp.Format(time.RFC3339), ev.Instance, ev.State, ev.Message)
	return err
}

func (progressSink) Close() error { return nil }

// setupInstance builds the session, controller and instance context shared by
// provision and teardown.
func setupInstance(cmd *cobra.Command, module string) (*session, *lifecycle.RegionController, *lifecycle.Instance, region.Node, error) {
	flags := cmd.Flags()

	var node region.Node
	name, err := flags.GetString("name")
	if err != nil {
		return nil, nil, nil, node, err
	}
	if name == "" {
		return nil, nil, nil, node, errors.New("--name is required")
	}
	macs, err := flags.GetStringSlice("mac")
	if err != nil {
		return nil, nil, nil, node, err
	}
	if len(macs) == 0 {
		return nil, nil, nil, node, errors.New("at least one --mac is required")
	}
	addr, err := flags.GetString("node")
	if err != nil {
		return nil, nil, nil, node, err
	}
	if addr == "" {
		return nil, nil, nil, node, errors.New("--node is required")
	}
	node = region.Node{Addr: addr}

	instancesPath, err := flags.GetString("instances-path")
	if err != nil {
		return nil, nil, nil, node, err
	}
	maxImageSize, err := parseMaxImageSize(flags)
	if err != nil {
		return nil, nil, nil, node, err
	}

	s, err := newSession(cmd, module)
	if err != nil {
		return nil, nil, nil, node, err
	}

	store, err := parseStore(flags, s)
	if err != nil {
		s.Close()
		return nil, nil, nil, node, err
	}

	ctlr, err := lifecycle.NewRegionController(lifecycle.Config{
		Client:        s.client,
		Store:         store,
		InstancesPath: instancesPath,
		MaxImageSize:  maxImageSize,
		Logger:        log.G(s.ctx),
	})
	if err != nil {
		s.Close()
		return nil, nil, nil, node, err
	}

	var network []lifecycle.NetworkInterface
	for _, mac := range macs {
		network = append(network, lifecycle.NetworkInterface{MAC: mac})
	}

	var userID, projectID string
	if f := flags.Lookup("user"); f != nil {
		userID = f.Value.String()
	}
	if f := flags.Lookup("project"); f != nil {
		projectID = f.Value.String()
	}

	return s, ctlr, ctlr.DefineInstance(name, userID, projectID, network), node, nil
}

// parseStore picks the image store. Teardown never fetches, so it may run
// without one.
func parseStore(flags *pflag.FlagSet, s *session) (imagestore.Store, error) {
	endpoint, err := flags.GetString("image-endpoint")
	if err != nil {
		return nil, err
	}
	dir, err := flags.GetString("image-dir")
	if err != nil {
		return nil, err
	}

	switch {
	case endpoint != "" && dir != "":
		return nil, errors.New("--image-endpoint and --image-dir are mutually exclusive")
	case endpoint != "":
		return imagestore.NewHTTPStore(endpoint, nil, log.G(s.ctx)), nil
	case dir != "":
		return imagestore.DirStore{Root: dir}, nil
	case flags.Lookup("image") == nil:
		return imagestore.DirStore{}, nil
	default:
		return nil, errors.New("one of --image-endpoint or --image-dir is required")
	}
}

func parseCredentials(flags *pflag.FlagSet) (imagestore.Credentials, error) {
	var creds imagestore.Credentials
	var err error
	if creds.UserID, err = flags.GetString("user"); err != nil {
		return creds, err
	}
	if creds.ProjectID, err = flags.GetString("project"); err != nil {
		return creds, err
	}
	if creds.Token, err = flags.GetString("token"); err != nil {
		return creds, err
	}
	return creds, nil
}

func parseMaxImageSize(flags *pflag.FlagSet) (int64, error) {
	f := flags.Lookup("max-image-size")
	if f == nil || f.Value.String() == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(f.Value.String())
	if err != nil {
		return 0, fmt.Errorf("invalid --max-image-size: %v", err)
	}
	if size < 0 {
		return 0, fmt.Errorf("invalid --max-image-size: %s", f.Value.String())
	}
	return size, nil
}
