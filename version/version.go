package version

import (
	"fmt"
	"io"
	"os"
)

var (
	// Package is filled at linking time
	Package = "github.com/savi/fpgavirt"

	// Version holds the complete version number. Filled in at linking time.
	Version = "v0.1.0+unknown"
)

// FprintVersion outputs the version string to the writer, in the following
// format, followed by a newline:
//
//	<cmd> <project> <version>
//
// For example, a binary "fpgactl" built from github.com/savi/fpgavirt with
// version "v0.1.0" would print the following:
//
//	fpgactl github.com/savi/fpgavirt v0.1.0
func FprintVersion(w io.Writer) {
	fmt.Fprintln(w, os.Args[0], Package, Version)
}
