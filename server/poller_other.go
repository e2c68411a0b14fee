//go:build !unix

package server

import (
	"errors"
	"time"
)

var errPollUnsupported = errors.New("readiness polling is not supported on this platform")

type unsupportedPoller struct{}

func newPoller() poller {
	return unsupportedPoller{}
}

func (unsupportedPoller) wait([]int, time.Duration) ([]int, error) {
	return nil, errPollUnsupported
}
