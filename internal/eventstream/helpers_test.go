package eventstream

import "time"

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func timeoutCh() <-chan time.Time {
	return time.After(testTimeout)
}
