package region

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/savi/fpgavirt/identity"
	"github.com/savi/fpgavirt/log"
	"github.com/savi/fpgavirt/xnet"
	"github.com/sirupsen/logrus"
)

// Config provides values for a Client.
type Config struct {
	// Timeout bounds the dial and every read and write. Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	// ChunkSize is the size of each bitstream write. Defaults to ChunkSize.
	ChunkSize int

	// Logger receives one entry per exchange. Output is discarded when nil.
	Logger *logrus.Entry

	// Collector records exchange metrics when set.
	Collector *Collector
}

type dialFunc func(ctx context.Context, proto, addr string, timeout time.Duration) (net.Conn, error)

// Client runs single request/response exchanges against subagents. Each call
// uses its own connection, so a Client is safe for concurrent use.
type Client struct {
	timeout   time.Duration
	chunkSize int
	logger    *logrus.Entry
	collector *Collector
	dial      dialFunc
}

// NewClient returns a Client configured by config.
func NewClient(config Config) *Client {
	c := &Client{
		timeout:   config.Timeout,
		chunkSize: config.ChunkSize,
		logger:    log.OrDiscard(config.Logger),
		collector: config.Collector,
		dial:      xnet.DialTimeout,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.chunkSize <= 0 {
		c.chunkSize = ChunkSize
	}
	return c
}

// Program streams the bitstream at imagePath to the region selected by mac.
func (c *Client) Program(ctx context.Context, mac string, node Node, imagePath string) (Outcome, error) {
	return c.Execute(ctx, Program, mac, node, imagePath)
}

// Release frees the region selected by mac.
func (c *Client) Release(ctx context.Context, mac string, node Node) (Outcome, error) {
	return c.Execute(ctx, Release, mac, node, "")
}

// Execute performs one exchange with the subagent at node. imagePath is only
// read for Program.
//
// Failures to reach the subagent are returned as *ConnectionError and
// malformed addresses as *FormatError. Timeouts, empty responses and
// malformed responses are not errors: they come back as degraded outcomes.
// The socket is closed before Execute returns.
func (c *Client) Execute(ctx context.Context, cmd Command, mac string, node Node, imagePath string) (outcome Outcome, err error) {
	logger := c.logger.WithFields(logrus.Fields{
		"exchange.id": identity.NewExchangeID(),
		"command":     string(cmd),
		"node":        node.Addr,
		"mac":         mac,
	})

	var (
		start = time.Now()
		sent  int64
	)
	defer func() {
		c.collector.observe(cmd, outcome, err, time.Since(start), sent)
		if err != nil {
			logger.WithError(err).Debug("exchange failed")
			return
		}
		logger.WithFields(logrus.Fields{
			"result":  outcome.Result,
			"message": outcome.Message,
		}).Debug("exchange complete")
	}()

	if !cmd.valid() {
		return Outcome{}, errors.Wrapf(ErrUnknownCommand, "command %q", cmd)
	}

	host, port, err := xnet.SplitNodeAddr(node.Addr)
	if err != nil {
		return Outcome{}, &FormatError{Addr: node.Addr, Err: err}
	}

	var (
		image *os.File
		size  int64
	)
	if cmd == Program {
		image, size, err = openImage(imagePath)
		if err != nil {
			return Outcome{}, err
		}
		defer image.Close()
		logger.WithField("size", units.BytesSize(float64(size))).Debug("sending bitstream")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := c.dial(ctx, "tcp", addr, c.timeout)
	if err != nil {
		return Outcome{}, &ConnectionError{Addr: node.Addr, Err: err}
	}
	defer conn.Close()

	sent, err = c.send(conn, cmd, mac, image, size)
	if err != nil {
		if isTimeout(err) {
			return degraded(MessageTimeout), nil
		}
		return Outcome{}, c.classify(node, imagePath, err)
	}

	return c.receive(conn, node)
}

func openImage(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &ImageError{Path: path, Err: err}
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &ImageError{Path: path, Err: err}
	}
	return f, fi.Size(), nil
}

// send writes the request header and, for Program, the bitstream. It returns
// the number of payload bytes written.
func (c *Client) send(conn net.Conn, cmd Command, mac string, image io.Reader, size int64) (int64, error) {
	if err := c.writeLine(conn, string(cmd)); err != nil {
		return 0, err
	}

	if cmd == Release {
		return 0, c.writeLine(conn, mac)
	}

	if err := c.writeLine(conn, strconv.FormatInt(size, 10)); err != nil {
		return 0, err
	}
	if err := c.writeLine(conn, mac); err != nil {
		return 0, err
	}
	return c.stream(conn, image, size)
}

func (c *Client) writeLine(conn net.Conn, line string) error {
	return c.write(conn, []byte(line+Terminator))
}

// write sends p in full. net.Conn returns an error on any short write.
func (c *Client) write(conn net.Conn, p []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err := conn.Write(p)
	return err
}

// stream copies exactly size bytes of image to conn in chunkSize writes. The
// subagent relies on the announced size to find the end of the payload, so
// the reader is capped at size and a short read is an error.
func (c *Client) stream(conn net.Conn, image io.Reader, size int64) (int64, error) {
	var (
		r    = io.LimitReader(image, size)
		buf  = make([]byte, c.chunkSize)
		sent int64
	)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := c.write(conn, buf[:n]); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return sent, &readError{err: rerr}
		}
	}

	if sent != size {
		return sent, errors.Wrapf(ErrShortPayload, "sent %d of %d bytes", sent, size)
	}
	return sent, nil
}

// receive reads the single response. A read timeout or an immediate close are
// degraded outcomes; anything else that breaks the read is a connection
// failure.
func (c *Client) receive(conn net.Conn, node Node) (Outcome, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return Outcome{}, &ConnectionError{Addr: node.Addr, Err: err}
	}

	buf := make([]byte, responseSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		switch {
		case isTimeout(err):
			return degraded(MessageTimeout), nil
		case err == io.EOF:
			return degraded(MessageNoResponse), nil
		default:
			return Outcome{}, &ConnectionError{Addr: node.Addr, Err: err}
		}
	}
	return ParseResponse(buf[:n]), nil
}

// readError marks a failure reading the local bitstream, as opposed to a
// failure writing to the connection.
type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }

func (c *Client) classify(node Node, imagePath string, err error) error {
	var rerr *readError
	switch {
	case errors.As(err, &rerr):
		return &ImageError{Path: imagePath, Err: rerr.err}
	case errors.Is(err, ErrShortPayload):
		return err
	default:
		return &ConnectionError{Addr: node.Addr, Err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
