package region

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// request is what the fake subagent observed on one connection.
type request struct {
	command  string
	size     string
	mac      string
	payload  []byte
	trailing []byte
}

type replyMode int

const (
	// replyWrite writes the reply and waits for the client to hang up.
	replyWrite replyMode = iota
	// replyClose closes the connection without writing anything.
	replyClose
	// replySilent writes nothing and waits for the client to hang up.
	replySilent
)

type reply struct {
	mode replyMode
	data string
}

func ack() reply { return reply{data: "ACK\r\nSUCCESS\r\n"} }

// fakeSubagent accepts connections and parses them the way a subagent would.
type fakeSubagent struct {
	l        net.Listener
	requests chan request
	respond  func(request) reply
}

func newFakeSubagent(t *testing.T, respond func(request) reply) *fakeSubagent {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSubagent{
		l:        l,
		requests: make(chan request, 16),
		respond:  respond,
	}
	t.Cleanup(func() { l.Close() })

	go s.serve()
	return s
}

func (s *fakeSubagent) node() Node {
	return Node{Addr: s.l.Addr().String()}
}

func (s *fakeSubagent) serve() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSubagent) handle(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	var req request

	req.command = readLine(br)
	switch req.command {
	case string(Program):
		req.size = readLine(br)
		req.mac = readLine(br)
		if n, err := strconv.Atoi(req.size); err == nil {
			req.payload = make([]byte, n)
			got, _ := io.ReadFull(br, req.payload)
			req.payload = req.payload[:got]
		}
	case string(Release):
		req.mac = readLine(br)
	}

	r := s.respond(req)
	switch r.mode {
	case replyClose:
		s.requests <- req
		return
	case replyWrite:
		io.WriteString(conn, r.data)
	}

	req.trailing, _ = io.ReadAll(br)
	s.requests <- req
}

func readLine(br *bufio.Reader) string {
	line, _ := br.ReadString('\n')
	return strings.TrimSuffix(line, Terminator)
}
