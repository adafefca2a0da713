//go:build windows

package playback

import "os"

// Windows has no SIGTERM; graceful stop degrades to Kill.
var terminateSignal = os.Kill
