//go:build linux

package process

import "golang.org/x/sys/unix"

// fionread is FIONREAD; x/sys/unix exports it on Linux as TIOCINQ.
const fionread = unix.TIOCINQ
