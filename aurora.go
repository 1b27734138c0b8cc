// Package aurora patches the already-loaded game client in the current
// process so that it talks to a local server.
//
// It scans the client's module for the length-prefixed UTF-16 strings that
// hold the official service origins and overwrites them with shorter local
// ones, and it fills the two jz instructions guarding the online-mode and
// singleplayer checks with NOPs. Nothing on disk is touched.
//
// This writes directly into executable memory of the running process. A
// wrong signature or table entry will crash the host, so every write is
// length checked against the record it replaces and made under a temporary
// RWX protection that is restored afterwards.
package aurora

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	changeServersOnce   sync.Once
	changeServersResult Result
	changeServersErr    error
)

// ChangeServers patches the main executable of the current process with the
// default table and the host's instruction encoding. It runs at most once per
// process; later calls return the first call's outcome. Substitutions that
// were already applied no longer match, so a second walk could only do harm.
func ChangeServers() (Result, error) {
	changeServersOnce.Do(func() {
		patcher, err := NewPatcher(HostPlatform())
		if err != nil {
			changeServersErr = err
			return
		}
		changeServersResult, changeServersErr = patcher.Apply()
		if changeServersErr != nil {
			logrus.WithError(changeServersErr).Error("could not patch module")
		}
	})
	return changeServersResult, changeServersErr
}
