package kcp

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xtaci/kcp-go/v5"
)

const (
	defaultHeartbeatInterval = 2 * time.Second
	defaultLinkTimeout       = 3 * defaultHeartbeatInterval
)

// heartbeat is never a move because moves are exactly one byte long. KCP has no close signal, so
// both ends send it while idle and treat a silent link as lost.
var heartbeat = []byte{0xff, 0x00}

type keepalive struct {
	interval time.Duration
	timeout  time.Duration
}

func defaultKeepalive() keepalive {
	return keepalive{interval: defaultHeartbeatInterval, timeout: defaultLinkTimeout}
}

func sendHeartbeats(session *kcp.UDPSession, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := session.Write(heartbeat); err != nil {
				return
			}
		}
	}
}

// readMessage returns the next message that is not a heartbeat. It fails when the peer stays
// silent for longer than timeout.
func readMessage(session *kcp.UDPSession, buf []byte, timeout time.Duration) (int, error) {
	for {
		if err := session.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, err := session.Read(buf)
		if err != nil {
			return 0, err
		}

		if !bytes.Equal(buf[:n], heartbeat) {
			return n, nil
		}
	}
}
