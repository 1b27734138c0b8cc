// Command libaurora builds the patcher as a shared library:
//
//	go build -buildmode=c-shared -o libaurora.so ./cmd/libaurora
//
// Preloading it into the client (LD_PRELOAD on Linux, or loading the DLL on
// Windows) patches the client as soon as the Go runtime initializes.
// AURORA_LOG_LEVEL sets the logrus level, default "info".
package main

import "C"

import (
	"os"

	"github.com/auroralauncher/aurora"
	"github.com/sirupsen/logrus"
)

func init() {
	if lvl, err := logrus.ParseLevel(os.Getenv("AURORA_LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}
	result, err := aurora.ChangeServers()
	if err != nil {
		return
	}
	if result.SwapsDone == 0 && result.JumpsPatched == 0 {
		logrus.Warn("nothing patched, client version may not be supported")
	}
}

func main() {}
