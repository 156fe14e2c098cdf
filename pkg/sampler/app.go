// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
)

// App RPC command and reply codes. The wire layout is little-endian,
// normative for this implementation regardless of host byte order (the
// original C implementation packed these as native-endian structs,
// which is ambiguous across architectures).
const (
	appCmdReset byte = 0x00
	appCmdPerf  byte = 0x01

	appReplySuccess byte = 0x00
	appReplyError   byte = 0x01

	appReplySize = 2 + 8 + 8 // code + request count + tail latency
)

// AppClient is the lazily-reconnecting TCP RPC client for one
// configured application target. Each tick either sends PERF followed
// by RESET (if connected) or, once the exponential backoff delay since
// the last failed attempt has elapsed, retries the connection (if not);
// a successful connect always sends RESET immediately to establish a
// known starting state.
type AppClient struct {
	app       Application
	logger    logr.Logger
	conn      net.Conn
	backoff   *backoff.ExponentialBackOff
	nextRetry time.Time
}

// NewAppClient constructs a client for one configured application. It
// does not connect; call Tick to attempt the initial connection.
func NewAppClient(app Application, logger logr.Logger) *AppClient {
	return &AppClient{
		app:     app,
		logger:  logger,
		backoff: backoff.NewExponentialBackOff(),
	}
}

// AppReading is one application's measurement for a tick.
type AppReading struct {
	RequestCount uint64
	TailLatency  float64
}

// Tick drives one tick's worth of RPC activity for this application. If
// not connected, it attempts to connect and immediately sends RESET,
// unless the backoff delay set by the previous failed attempt has not
// yet elapsed, in which case it makes no attempt this tick. A connect
// failure is logged at Info level and schedules the next attempt after
// a growing backoff delay (non-fatal, per the application error
// taxonomy); no warning-level log is emitted. If connected, it
// sends PERF to collect this tick's reading, then RESET to clear the
// counters for the next window; an ERROR reply to either is fatal for
// this application, matching the original implementation's behavior of
// treating a misbehaving app as unrecoverable rather than retryable.
func (c *AppClient) Tick() (AppReading, error) {
	if c.conn == nil {
		if !c.nextRetry.IsZero() && time.Now().Before(c.nextRetry) {
			return AppReading{}, nil
		}
		if err := c.connect(); err != nil {
			delay, backoffErr := c.backoff.NextBackOff()
			if backoffErr != nil {
				delay = 30 * time.Second
			}
			c.nextRetry = time.Now().Add(delay)
			c.logger.Info("application connect failed, will retry", "app", c.app.Label, "error", err, "retryIn", delay)
			return AppReading{}, nil
		}
		if err := c.sendReset(); err != nil {
			return AppReading{}, fmt.Errorf("app %s: initial reset failed: %w", c.app.Label, err)
		}
		return AppReading{}, nil
	}

	reading, err := c.sendPerf()
	if err != nil {
		c.closeConn()
		return AppReading{}, fmt.Errorf("app %s: perf request failed: %w", c.app.Label, err)
	}
	if err := c.sendReset(); err != nil {
		c.closeConn()
		return AppReading{}, fmt.Errorf("app %s: reset failed: %w", c.app.Label, err)
	}
	return reading, nil
}

func (c *AppClient) connect() error {
	addr := fmt.Sprintf("%s:%d", c.app.Hostname, c.app.Port)
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		c.app.Connected = false
		return err
	}
	c.conn = conn
	c.app.Connected = true
	c.backoff.Reset()
	return nil
}

func (c *AppClient) closeConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.app.Connected = false
}

func (c *AppClient) sendReset() error {
	if err := c.sendCommand(appCmdReset); err != nil {
		return err
	}
	code, _, _, err := c.readReply()
	if err != nil {
		c.closeConn()
		return err
	}
	if code != appReplySuccess {
		c.closeConn()
		return fmt.Errorf("reset rejected with code %#x", code)
	}
	return nil
}

func (c *AppClient) sendPerf() (AppReading, error) {
	if err := c.sendCommand(appCmdPerf); err != nil {
		return AppReading{}, err
	}
	code, count, latency, err := c.readReply()
	if err != nil {
		return AppReading{}, err
	}
	if code != appReplySuccess {
		return AppReading{}, fmt.Errorf("perf rejected with code %#x", code)
	}
	return AppReading{RequestCount: count, TailLatency: latency}, nil
}

func (c *AppClient) sendCommand(cmd byte) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(cmd))
	_, err := c.conn.Write(buf)
	return err
}

func (c *AppClient) readReply() (code byte, count uint64, latency float64, err error) {
	buf := make([]byte, appReplySize)
	if _, err = readFull(c.conn, buf); err != nil {
		return 0, 0, 0, err
	}
	code = buf[0]
	count = binary.LittleEndian.Uint64(buf[2:10])
	latency = math.Float64frombits(binary.LittleEndian.Uint64(buf[10:18]))
	return code, count, latency, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Label returns this client's configured application label, for
// attributing metrics and log lines.
func (c *AppClient) Label() string {
	return c.app.Label
}

// Close closes the underlying connection, if any. Called during engine
// shutdown so no application socket is left open.
func (c *AppClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
