package region

import (
	"bytes"
	"context"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBitstream(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)

	path := filepath.Join(t.TempDir(), "disk")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

func TestProgram(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return ack() })
	path, data := writeBitstream(t, 3*ChunkSize+17)

	outcome, err := NewClient(Config{}).Program(context.Background(), "aa:bb", agent.node(), path)
	require.NoError(t, err)
	assert.True(t, outcome.OK())
	assert.Equal(t, Outcome{Result: ResultACK, Message: MessageSuccess}, outcome)

	req := <-agent.requests
	assert.Equal(t, "PRG", req.command)
	assert.Equal(t, "3089", req.size)
	assert.Equal(t, "aa:bb", req.mac)
	assert.True(t, bytes.Equal(data, req.payload), "payload differs from bitstream")
	assert.Empty(t, req.trailing)
}

func TestProgramEmptyBitstream(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return ack() })
	path, _ := writeBitstream(t, 0)

	outcome, err := NewClient(Config{}).Program(context.Background(), "aa:bb", agent.node(), path)
	require.NoError(t, err)
	assert.True(t, outcome.OK())

	req := <-agent.requests
	assert.Equal(t, "0", req.size)
	assert.Empty(t, req.payload)
	assert.Empty(t, req.trailing)
}

func TestRelease(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return ack() })

	outcome, err := NewClient(Config{}).Release(context.Background(), "cc:dd", agent.node())
	require.NoError(t, err)
	assert.True(t, outcome.OK())

	req := <-agent.requests
	assert.Equal(t, "REL", req.command)
	assert.Equal(t, "cc:dd", req.mac)
	assert.Empty(t, req.size)
	assert.Empty(t, req.payload)
	assert.Empty(t, req.trailing, "release must not carry a size line or payload")
}

func TestResponses(t *testing.T) {
	path, _ := writeBitstream(t, 64)

	for _, tc := range []struct {
		name     string
		reply    reply
		expected Outcome
	}{
		{
			name:     "success",
			reply:    ack(),
			expected: Outcome{Result: "ACK", Message: "SUCCESS"},
		},
		{
			name:     "negative",
			reply:    reply{data: "NAK\r\nREGION BUSY\r\n"},
			expected: Outcome{Result: "NAK", Message: "REGION BUSY"},
		},
		{
			name:     "ack without success",
			reply:    reply{data: "ACK\r\nPENDING\r\n"},
			expected: Outcome{Result: "ACK", Message: "PENDING"},
		},
		{
			name:     "too few fields",
			reply:    reply{data: "ACK\r\n"},
			expected: Outcome{Result: ResultDegraded, Message: MessageMalformed},
		},
		{
			name:     "missing terminator",
			reply:    reply{data: "ACK\r\nSUCCESS"},
			expected: Outcome{Result: ResultDegraded, Message: MessageMalformed},
		},
		{
			name:     "too many fields",
			reply:    reply{data: "ACK\r\nSUCCESS\r\nEXTRA\r\n"},
			expected: Outcome{Result: ResultDegraded, Message: MessageMalformed},
		},
		{
			name:     "closed without response",
			reply:    reply{mode: replyClose},
			expected: Outcome{Result: ResultDegraded, Message: MessageNoResponse},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			agent := newFakeSubagent(t, func(request) reply { return tc.reply })
			client := NewClient(Config{})

			outcome, err := client.Program(context.Background(), "aa:bb", agent.node(), path)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, outcome)
			assert.Equal(t, tc.expected == Outcome{Result: "ACK", Message: "SUCCESS"}, outcome.OK())

			outcome, err = client.Release(context.Background(), "aa:bb", agent.node())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, outcome)
		})
	}
}

func TestReadTimeoutIsDegraded(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return reply{mode: replySilent} })

	client := NewClient(Config{Timeout: 100 * time.Millisecond})
	outcome, err := client.Release(context.Background(), "aa:bb", agent.node())
	require.NoError(t, err, "a read timeout must not be raised")
	assert.True(t, outcome.Degraded())
	assert.Equal(t, MessageTimeout, outcome.Message)
	assert.False(t, outcome.OK())

	// the subagent only sees EOF once the client has closed the socket.
	req := <-agent.requests
	assert.Equal(t, "REL", req.command)
}

func TestConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = NewClient(Config{}).Release(context.Background(), "aa:bb", Node{Addr: addr})
	require.Error(t, err)

	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr), "expected ConnectionError, got %T", err)
	assert.Equal(t, addr, cerr.Addr)
}

func TestMalformedAddress(t *testing.T) {
	client := NewClient(Config{})
	client.dial = func(context.Context, string, string, time.Duration) (net.Conn, error) {
		t.Fatal("no connection should be attempted")
		return nil, nil
	}

	for _, addr := range []string{"", "localhost", "a:b:c", "localhost:http"} {
		_, err := client.Release(context.Background(), "aa:bb", Node{Addr: addr})
		var ferr *FormatError
		assert.True(t, errors.As(err, &ferr), "%q: expected FormatError, got %v", addr, err)
	}
}

func TestDialsExactAddress(t *testing.T) {
	var dialed []string
	client := NewClient(Config{Timeout: time.Second})
	client.dial = func(_ context.Context, proto, addr string, timeout time.Duration) (net.Conn, error) {
		assert.Equal(t, "tcp", proto)
		assert.Equal(t, time.Second, timeout)
		dialed = append(dialed, addr)
		return nil, errors.New("refused")
	}

	for _, addr := range []string{"10.1.2.3:6677", "subagent.local:1", ":9000"} {
		_, err := client.Release(context.Background(), "aa:bb", Node{Addr: addr})
		var cerr *ConnectionError
		require.True(t, errors.As(err, &cerr))
	}
	assert.Equal(t, []string{"10.1.2.3:6677", "subagent.local:1", ":9000"}, dialed)
}

func TestMissingBitstream(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return ack() })
	path := filepath.Join(t.TempDir(), "missing")

	_, err := NewClient(Config{}).Program(context.Background(), "aa:bb", agent.node(), path)
	var ierr *ImageError
	require.True(t, errors.As(err, &ierr), "expected ImageError, got %v", err)
	assert.Equal(t, path, ierr.Path)
	assert.True(t, os.IsNotExist(errors.Cause(ierr.Err)))
}

func TestUnknownCommand(t *testing.T) {
	_, err := NewClient(Config{}).Execute(context.Background(), Command("GET"), "aa:bb", Node{Addr: "127.0.0.1:1"}, "")
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

// recordingConn records the size of every write.
type recordingConn struct {
	net.Conn

	mu     sync.Mutex
	writes []int
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes = append(c.writes, len(p))
	c.mu.Unlock()
	return c.Conn.Write(p)
}

func TestProgramChunking(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return ack() })
	path, data := writeBitstream(t, 2500)

	var conn *recordingConn
	client := NewClient(Config{ChunkSize: 1000})
	client.dial = func(ctx context.Context, proto, addr string, timeout time.Duration) (net.Conn, error) {
		c, err := net.DialTimeout(proto, addr, timeout)
		if err != nil {
			return nil, err
		}
		conn = &recordingConn{Conn: c}
		return conn, nil
	}

	outcome, err := client.Program(context.Background(), "aa:bb", agent.node(), path)
	require.NoError(t, err)
	assert.True(t, outcome.OK())

	// command, size and mac lines, then the payload in chunks.
	assert.Equal(t, []int{5, 6, 7, 1000, 1000, 500}, conn.writes)

	req := <-agent.requests
	assert.True(t, bytes.Equal(data, req.payload))
}

func TestStreamShortPayload(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := remote.Read(buf); err != nil {
				return
			}
		}
	}()
	defer remote.Close()

	client := NewClient(Config{ChunkSize: 4})
	sent, err := client.stream(local, bytes.NewReader([]byte("0123456789")), 16)
	assert.True(t, errors.Is(err, ErrShortPayload))
	assert.EqualValues(t, 10, sent)

	// a source longer than announced is cut at the announced size.
	sent, err = client.stream(local, bytes.NewReader([]byte("0123456789")), 6)
	require.NoError(t, err)
	assert.EqualValues(t, 6, sent)
}

func TestWriteTimeoutIsDegraded(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	// hold the connection open without reading so the send buffers fill up.
	held := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		held <- conn
	}()
	t.Cleanup(func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	})

	path := filepath.Join(t.TempDir(), "disk")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(64<<20))
	require.NoError(t, f.Close())

	client := NewClient(Config{Timeout: 200 * time.Millisecond})
	outcome, err := client.Program(context.Background(), "aa:bb", Node{Addr: l.Addr().String()}, path)
	require.NoError(t, err, "a write timeout must not be raised")
	assert.Equal(t, Outcome{Result: ResultDegraded, Message: MessageTimeout}, outcome)
}

// shrinkingConn truncates the bitstream at path on the first write, after the
// client has announced the original size.
type shrinkingConn struct {
	net.Conn

	path string
	once sync.Once
}

func (c *shrinkingConn) Write(p []byte) (int, error) {
	c.once.Do(func() { os.Truncate(c.path, 10) })
	return c.Conn.Write(p)
}

func TestProgramShortPayload(t *testing.T) {
	agent := newFakeSubagent(t, func(request) reply { return ack() })
	path, _ := writeBitstream(t, 3000)

	client := NewClient(Config{})
	client.dial = func(ctx context.Context, proto, addr string, timeout time.Duration) (net.Conn, error) {
		c, err := net.DialTimeout(proto, addr, timeout)
		if err != nil {
			return nil, err
		}
		return &shrinkingConn{Conn: c, path: path}, nil
	}

	_, err := client.Program(context.Background(), "aa:bb", agent.node(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortPayload), "expected ErrShortPayload, got %v", err)

	var cerr *ConnectionError
	assert.False(t, errors.As(err, &cerr), "a short payload is not a connection failure")

	req := <-agent.requests
	assert.Equal(t, "3000", req.size)
	assert.Len(t, req.payload, 10)
}

func TestParseResponse(t *testing.T) {
	assert.Equal(t, Outcome{Result: ResultDegraded, Message: MessageNoResponse}, ParseResponse(nil))
	assert.Equal(t, Outcome{Result: "ACK", Message: "SUCCESS"}, ParseResponse([]byte("ACK\r\nSUCCESS\r\n")))
	assert.Equal(t, Outcome{Result: "", Message: ""}, ParseResponse([]byte("\r\n\r\n")))
	assert.True(t, ParseResponse([]byte("ACK\nSUCCESS\n")).Degraded())
}
