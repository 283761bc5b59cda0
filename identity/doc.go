// Package identity generates the short random identifiers used to correlate
// the log entries of a single subagent exchange.
//
// Identifiers are 64 random bits encoded in base36 and left padded to a fixed
// width of 13 characters. They carry no meaning and should be treated
// opaquely.
package identity
