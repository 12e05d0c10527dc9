package process

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/loykin/procman/internal/event"
)

// readAvailable reads at most len(buf) bytes that are already buffered in the
// pipe behind f. It never waits for data: FIONREAD tells how much is pending.
func readAvailable(f *os.File, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var (
		n    int
		rerr error
	)
	err = rc.Read(func(fd uintptr) bool {
		avail, e := unix.IoctlGetInt(int(fd), fionread)
		if e != nil {
			rerr = e
			return true
		}
		if avail <= 0 {
			return true
		}
		if avail > len(buf) {
			avail = len(buf)
		}
		for {
			n, e = unix.Read(int(fd), buf[:avail])
			if errors.Is(e, unix.EINTR) {
				continue
			}
			break
		}
		if n < 0 {
			n = 0
		}
		if e != nil && !errors.Is(e, unix.EAGAIN) {
			rerr = e
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, rerr
}

// wait4 wraps unix.Wait4 with EINTR retry. done is false when WNOHANG was
// requested and the child is still running.
func wait4(pid int, options int) (unix.WaitStatus, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, false, err
		}
		return ws, wpid != 0, nil
	}
}

func exitStatus(ws unix.WaitStatus) event.ExitStatus {
	if ws.Signaled() {
		return event.ExitStatus{Code: -1, Signal: syscall.Signal(ws.Signal())}
	}
	return event.ExitStatus{Code: ws.ExitStatus()}
}
