package location

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nmeaLine(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, cs)
}

func TestNMEASourceReadsUntilEOF(t *testing.T) {
	stream := strings.Join([]string{
		"noise\r\n",
		nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"),
		nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,160926,003.1,W"),
		nmeaLine("HCHDG,98.3,0.0,E,12.6,W"),
		"$GPRMC,broken*00\r\n",
	}, "")
	src := NewNMEASource(io.NopCloser(strings.NewReader(stream)), 5, 2)

	require.NoError(t, src.Start(context.Background()))
	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop at EOF")
	}
	assert.NoError(t, src.Err())

	fix, ok := src.Fix()
	require.True(t, ok)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-6)
	assert.InDelta(t, 545.4, fix.Altitude, 1e-9)

	h, ok := <-src.Headings()
	require.True(t, ok)
	assert.InDelta(t, 98.3, h.MagneticHeading, 1e-9)
	assert.True(t, h.Reliable())

	_, ok = <-src.Headings()
	assert.False(t, ok, "channel closed once the reader stops")
}

func TestNMEASourceStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewNMEASource(pr, 5, 2)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))

	_, err := io.WriteString(pw, nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,160926,003.1,W"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := src.Fix()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on cancel")
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMockSourceFixHoldsBetweenUpdates(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	cfg := DefaultMockConfig()
	cfg.FixDelay = 100 * time.Millisecond
	cfg.Now = clock.Now
	src := NewMockSource(cfg)

	_, ok := src.Fix()
	assert.False(t, ok, "no fix during the delay")

	clock.advance(200 * time.Millisecond)
	first, ok := src.Fix()
	require.True(t, ok)
	assert.InDelta(t, 35.7, first.Latitude, 1e-9)

	clock.advance(700 * time.Millisecond)
	same, _ := src.Fix()
	assert.Equal(t, first, same, "position only changes once per update period")

	clock.advance(200 * time.Millisecond)
	moved, _ := src.Fix()
	assert.Greater(t, moved.Latitude, first.Latitude)
	assert.Greater(t, moved.Longitude, first.Longitude)
}

func TestMockSourceEmitsHeadings(t *testing.T) {
	cfg := DefaultMockConfig()
	cfg.HeadingEvery = 5 * time.Millisecond
	src := NewMockSource(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Start(ctx))

	select {
	case h := <-src.Headings():
		assert.InDelta(t, 45, h.MagneticHeading, 3.01)
	case <-time.After(2 * time.Second):
		t.Fatal("no heading emitted")
	}
	_, ok := src.Heading()
	assert.True(t, ok)
	assert.NoError(t, src.Close())
}

func TestMQTTSourceHandlers(t *testing.T) {
	src := NewMQTTSource("tcp://localhost:1883", "test", "inertial/gps", "inertial/heading")

	_, ok := src.Fix()
	assert.False(t, ok)

	src.handleFix([]byte(`{"time":"2026-10-16T09:00:00Z","latitude":35.7,"longitude":51.4,"altitude":1190,` +
		`"horizontalAccuracy":4.5,"verticalAccuracy":6,"speed":6,"speedAccuracy":-1,"course":45,"validity":"A"}`))
	fix, ok := src.Fix()
	require.True(t, ok)
	assert.Equal(t, 35.7, fix.Latitude)
	assert.Equal(t, 4.5, fix.HorizontalAccuracy)

	src.handleFix([]byte(`not json`))
	fix, _ = src.Fix()
	assert.Equal(t, 35.7, fix.Latitude, "bad payload keeps previous fix")

	src.handleHeading([]byte(`{"magneticHeading":42.5,"accuracy":-1}`))
	h := <-src.Headings()
	assert.Equal(t, 42.5, h.MagneticHeading)
	assert.False(t, h.Reliable())

	last, ok := src.Heading()
	require.True(t, ok)
	assert.Equal(t, h, last)
}
