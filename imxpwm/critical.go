package imxpwm

/*
	critical.go: time-critical execution for the sample-register write
	sequence. The race being closed is against the peripheral's own
	counter, not against other goroutines, so a mutex is not sufficient:
	the sequence must not be preempted between reading the counter and
	finishing the writes. The closest userspace equivalent of a masked-
	interrupt section is an OS-thread-pinned, SCHED_FIFO max-priority
	window with the process memory locked.
*/

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// timeCritical runs fn pinned to its OS thread at real-time priority and
// restores the previous scheduling afterwards. When the priority boost is
// unavailable (not root, RLIMIT_RTPRIO 0), fn still runs; the erratum
// window merely gets wider.
func (c *Channel) timeCritical(fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev, err := unix.SchedGetAttr(0, 0)
	if err == nil {
		rt := unix.SchedAttr{
			Size:     unix.SizeofSchedAttr,
			Policy:   unix.SCHED_FIFO,
			Priority: 99,
		}
		if serr := unix.SchedSetAttr(0, &rt, 0); serr != nil {
			c.logger.Debugf("no real-time priority for PWM write sequence: %v", serr)
			prev = nil
		}
	} else {
		c.logger.Debugf("cannot read scheduler attributes: %v", err)
		prev = nil
	}

	fn()

	if prev != nil {
		if serr := unix.SchedSetAttr(0, prev, 0); serr != nil {
			c.logger.Warnf("failed to restore scheduler attributes: %v", serr)
		}
	}
}

// spinWait busy-waits without yielding the thread. Only used inside the
// time-critical section for sub-period delays where sleeping would hand
// the CPU away.
func spinWait(d time.Duration) {
	for end := time.Now().Add(d); time.Now().Before(end); {
	}
}

func lockProcessMemory() {
	// Best effort; a failure just means a page fault could stretch the
	// write sequence.
	_ = unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}
