//go:build !windows

package playback

import "syscall"

// terminateSignal is the graceful-stop signal sent before Kill.
var terminateSignal = syscall.SIGTERM
