//go:build linux

package softpwm

import "golang.org/x/sys/unix"

// elevateLoopThread raises the calling thread's scheduling priority so phase
// waits wake closer to their deadline. Needs CAP_SYS_NICE; failure is
// ignored and the loop runs at default priority.
func elevateLoopThread() {
	_ = unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), -10)
}
