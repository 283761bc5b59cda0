package region

import (
	"strings"
	"time"
)

// Command is a request token understood by the subagent.
type Command string

const (
	// Program asks the subagent to program the region selected by a MAC
	// address with the bitstream that follows the request header.
	Program Command = "PRG"

	// Release asks the subagent to free the region selected by a MAC address.
	Release Command = "REL"
)

func (c Command) valid() bool {
	return c == Program || c == Release
}

const (
	// Terminator ends every request line and every response field.
	Terminator = "\r\n"

	// DefaultTimeout bounds the dial and each subsequent read or write.
	DefaultTimeout = 10 * time.Second

	// ChunkSize is the size of each payload write when streaming a bitstream.
	ChunkSize = 1024

	// responseSize is the most the client reads back from the subagent.
	responseSize = 512

	// responseFields is what a well-formed response splits into:
	// result, message and the empty field after the final terminator.
	responseFields = 3
)

// Result and message tokens.
const (
	ResultACK      = "ACK"
	MessageSuccess = "SUCCESS"

	// ResultDegraded marks outcomes produced locally because the subagent did
	// not give a usable answer.
	ResultDegraded = "-1"

	MessageTimeout    = "socket timeout"
	MessageNoResponse = "no response before close"
	MessageMalformed  = "response message is too long or in incorrect format"
)

// Node is a subagent endpoint addressed as host:port.
type Node struct {
	Addr string
}

func (n Node) String() string {
	return n.Addr
}

// Outcome is the normalized answer to one exchange.
type Outcome struct {
	Result  string
	Message string
}

// OK reports whether the subagent acknowledged the command as successful.
func (o Outcome) OK() bool {
	return o.Result == ResultACK && o.Message == MessageSuccess
}

// Degraded reports whether the outcome was synthesized locally after a
// timeout, an empty response or a malformed response.
func (o Outcome) Degraded() bool {
	return o.Result == ResultDegraded
}

func (o Outcome) String() string {
	return o.Result + "/" + o.Message
}

func degraded(msg string) Outcome {
	return Outcome{Result: ResultDegraded, Message: msg}
}

// ParseResponse converts raw response bytes into an Outcome. It never fails:
// unusable responses become degraded outcomes.
func ParseResponse(p []byte) Outcome {
	if len(p) == 0 {
		return degraded(MessageNoResponse)
	}

	fields := strings.Split(string(p), Terminator)
	if len(fields) != responseFields {
		return degraded(MessageMalformed)
	}
	return Outcome{Result: fields[0], Message: fields[1]}
}
