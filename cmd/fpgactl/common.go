package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/savi/fpgavirt/log"
	"github.com/savi/fpgavirt/region"
	"github.com/spf13/cobra"
)

const defaultTimeout = region.DefaultTimeout

// session carries what every subcommand needs to talk to a subagent.
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	client   *region.Client
	registry *prometheus.Registry
	textfile string
}

// newSession builds a region client from the persistent flags. The context is
// canceled on SIGINT or SIGTERM.
func newSession(cmd *cobra.Command, module string) (*session, error) {
	flags := cmd.Flags()
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, errors.New("--timeout must be positive")
	}
	textfile, err := flags.GetString("metrics-textfile")
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector, err := region.NewCollector(registry)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = log.WithModule(ctx, module)

	return &session{
		ctx:    ctx,
		cancel: cancel,
		client: region.NewClient(region.Config{
			Timeout:   timeout,
			Logger:    log.G(ctx),
			Collector: collector,
		}),
		registry: registry,
		textfile: textfile,
	}, nil
}

// Close releases the signal handler and writes the metrics textfile, if one
// was requested.
func (s *session) Close() error {
	s.cancel()
	if s.textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(s.textfile, s.registry)
}

// closeSession folds the error from s.Close into *errp.
func closeSession(s *session, errp *error) {
	if err := s.Close(); err != nil && *errp == nil {
		*errp = err
	}
}
