// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler_test

import (
	"encoding/binary"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/pulse/pkg/sampler"
)

// fakeAppServer answers RESET with success and PERF with a fixed
// reading, matching the 18-byte little-endian reply layout.
func fakeAppServer(t *testing.T, requestCount uint64, tailLatency float64) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					cmd := make([]byte, 2)
					if _, err := readFullTest(c, cmd); err != nil {
						return
					}
					reply := make([]byte, 18)
					switch binary.LittleEndian.Uint16(cmd) {
					case 0x00: // reset
						reply[0] = 0x00
					case 0x01: // perf
						reply[0] = 0x00
						binary.LittleEndian.PutUint64(reply[2:10], requestCount)
						binary.LittleEndian.PutUint64(reply[10:18], math.Float64bits(tailLatency))
					}
					if _, err := c.Write(reply); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln
}

func readFullTest(conn net.Conn, buf []byte) (int, error) {
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

func TestAppClient_ConnectsAndReadsPerfReading(t *testing.T) {
	ln := fakeAppServer(t, 123, 45.6)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	app := sampler.Application{Label: "test", Hostname: host, Port: port}
	client := sampler.NewAppClient(app, logr.Discard())
	defer client.Close()

	// First tick: connects and sends the initial reset, no reading yet.
	reading, err := client.Tick()
	require.NoError(t, err)
	assert.Equal(t, sampler.AppReading{}, reading)

	// Second tick: already connected, sends PERF then RESET.
	reading, err = client.Tick()
	require.NoError(t, err)
	assert.Equal(t, uint64(123), reading.RequestCount)
	assert.InDelta(t, 45.6, reading.TailLatency, 1e-9)
}

func TestAppClient_ConnectFailureIsNonFatalAndRetried(t *testing.T) {
	app := sampler.Application{Label: "down", Hostname: "127.0.0.1", Port: 1}
	client := sampler.NewAppClient(app, logr.Discard())
	defer client.Close()

	reading, err := client.Tick()
	require.NoError(t, err, "a connect failure should not be reported as a fatal error")
	assert.Equal(t, sampler.AppReading{}, reading)
}

func TestAppClient_CloseIsIdempotent(t *testing.T) {
	app := sampler.Application{Label: "noop", Hostname: "127.0.0.1", Port: 1}
	client := sampler.NewAppClient(app, logr.Discard())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

// Sanity: the fake server round-trips within a reasonable time budget so
// a hang in the client wire protocol surfaces as a test failure rather
// than a CI timeout.
func TestAppClient_TickCompletesQuickly(t *testing.T) {
	ln := fakeAppServer(t, 1, 1.0)
	defer ln.Close()
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	app := sampler.Application{Label: "test", Hostname: host, Port: port}
	client := sampler.NewAppClient(app, logr.Discard())
	defer client.Close()

	done := make(chan struct{})
	go func() {
		client.Tick()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Tick did not complete within 5s")
	}
}
