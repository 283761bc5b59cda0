// Package region implements the client side of the subagent protocol used to
// program and release FPGA partial-reconfiguration regions.
//
// Every exchange opens a TCP connection, writes one CRLF terminated request,
// and reads a single response of the form "<result>\r\n<message>\r\n". A
// program request is followed by the raw bitstream; the subagent finds its end
// from the size announced in the request header.
//
//	PRG\r\n<size>\r\n<mac>\r\n<size bytes of bitstream>
//	REL\r\n<mac>\r\n
//
// Only "ACK" / "SUCCESS" counts as success. Timeouts, empty responses and
// responses that do not split into exactly three fields are reported as
// degraded outcomes rather than errors, so callers decide how to surface them.
package region
