package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/savi/fpgavirt/region"
	"github.com/spf13/cobra"
)

func newProgramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "program <node> <mac> <bitstream>",
		Short: "Program the region selected by a MAC address",
		Long: `Stream a bitstream to the subagent at <node> (host:port) and program
the region selected by <mac>. No image store or workspace is involved.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) != 3 {
				return errors.New("program command takes exactly 3 arguments")
			}
			node, mac, path := region.Node{Addr: args[0]}, args[1], args[2]

			fi, err := os.Stat(path)
			if err != nil {
				return err
			}

			s, err := newSession(cmd, "program")
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			outcome, err := s.client.Program(s.ctx, mac, node, path)
			if err != nil {
				return err
			}
			if err := checkOutcome(outcome); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "programmed region %s on %s (%s)\n",
				mac, node, humanize.IBytes(uint64(fi.Size())))
			return nil
		},
	}
}

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <node> <mac>",
		Short: "Release the region selected by a MAC address",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) != 2 {
				return errors.New("release command takes exactly 2 arguments")
			}
			node, mac := region.Node{Addr: args[0]}, args[1]

			s, err := newSession(cmd, "release")
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			outcome, err := s.client.Release(s.ctx, mac, node)
			if err != nil {
				return err
			}
			if err := checkOutcome(outcome); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "released region %s on %s\n", mac, node)
			return nil
		},
	}
}

func checkOutcome(outcome region.Outcome) error {
	if outcome.OK() {
		return nil
	}
	if outcome.Degraded() {
		return fmt.Errorf("subagent gave no usable answer: %s", outcome.Message)
	}
	return fmt.Errorf("subagent refused: %s %s", outcome.Result, outcome.Message)
}
