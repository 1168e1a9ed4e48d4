//go:build !unix

package source

import "os/exec"

// killProcessGroup is a no-op where process groups are unavailable;
// cancellation kills the dexer process only.
func killProcessGroup(*exec.Cmd) {}
