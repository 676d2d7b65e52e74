//go:build !linux

package softpwm

func elevateLoopThread() {}
