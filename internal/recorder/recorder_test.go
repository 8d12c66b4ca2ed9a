package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

type fakeSource struct {
	mu          sync.Mutex
	fix         gps.Fix
	haveFix     bool
	heading     gps.Heading
	haveHeading bool
}

func (f *fakeSource) Fix() (gps.Fix, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fix, f.haveFix
}

func (f *fakeSource) Heading() (gps.Heading, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heading, f.haveHeading
}

func (f *fakeSource) setFix(fix gps.Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fix = fix
	f.haveFix = true
}

// memSink keeps every snapshot it was given, encoded as JSON.
type memSink struct {
	mu     sync.Mutex
	fail   bool
	writes [][]byte
	last   []Sample
}

func (m *memSink) Write(samples []Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return err
	}
	m.writes = append(m.writes, data)
	m.last = samples
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func steadyFix() gps.Fix {
	return gps.Fix{
		Latitude:           35.7,
		Longitude:          51.4,
		Altitude:           1190,
		HorizontalAccuracy: 4.5,
		VerticalAccuracy:   6,
		Speed:              6,
		SpeedAccuracy:      -1,
	}
}

var t0 = time.Date(2026, 10, 16, 9, 30, 0, 0, time.Local)

func ticks(r *Recorder, from, n int) {
	for i := from; i < from+n; i++ {
		r.Handle(Tick{At: t0.Add(time.Duration(i) * DefaultInterval)})
	}
}

func TestSteadyFixTwentyTicksOneWrite(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{}
	r := New(src, sink, Options{})

	ticks(r, 0, 19)
	assert.Equal(t, 0, sink.count())
	assert.Empty(t, r.Samples())
	assert.Equal(t, 19, r.Pending())

	ticks(r, 19, 1)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, 0, r.Pending())

	samples := r.Samples()
	require.Len(t, samples, 20)
	require.Len(t, sink.last, 20)
	for i, s := range sink.last {
		assert.Nil(t, s.MagneticHeading, "sample %d", i)
		assert.Equal(t, 35.7, s.Latitude)
	}
	assert.Equal(t, "20261016.093000.000", samples[0].Time)
	assert.Equal(t, "20261016.093000.380", samples[19].Time)
}

func TestHeadingAnnotatesOnlyLastSample(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	r := New(src, &memSink{}, Options{})
	ticks(r, 0, 20)

	r.Handle(HeadingUpdated{Value: 42.5, Accuracy: 3})

	samples := r.Samples()
	require.Len(t, samples, 20)
	for i := 0; i < 19; i++ {
		assert.Nil(t, samples[i].MagneticHeading, "sample %d", i)
	}
	require.NotNil(t, samples[19].MagneticHeading)
	assert.Equal(t, 42.5, *samples[19].MagneticHeading)
}

func TestUnreliableHeadingIsIgnored(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	r := New(src, &memSink{}, Options{})
	ticks(r, 0, 20)

	r.Handle(HeadingUpdated{Value: 10, Accuracy: 2})
	for _, acc := range []float64{-1, -0.001, -180} {
		r.Handle(HeadingUpdated{Value: 300, Accuracy: acc})
		last := r.Samples()[19]
		require.NotNil(t, last.MagneticHeading)
		assert.Equal(t, 10.0, *last.MagneticHeading)
	}
}

func TestHeadingBeforeAnySample(t *testing.T) {
	src := &fakeSource{}
	r := New(src, &memSink{}, Options{})

	assert.NotPanics(t, func() {
		r.Handle(HeadingUpdated{Value: 42.5, Accuracy: 1})
	})
	assert.Empty(t, r.Samples())
	_, ok := r.Latest()
	assert.False(t, ok)
}

// A heading that arrives while the newest sample still sits in the batch
// lands on the last flushed sample, not on the newest one.
func TestHeadingWhileNewestSampleIsBatched(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	r := New(src, &memSink{}, Options{})
	ticks(r, 0, 25)
	require.Equal(t, 5, r.Pending())

	r.Handle(HeadingUpdated{Value: 77, Accuracy: 1})

	samples := r.Samples()
	require.Len(t, samples, 20)
	require.NotNil(t, samples[19].MagneticHeading)
	assert.Equal(t, 77.0, *samples[19].MagneticHeading)

	newest, ok := r.Latest()
	require.True(t, ok)
	assert.Nil(t, newest.MagneticHeading)
	assert.Equal(t, "20261016.093000.480", newest.Time)
}

func TestNoFixSkipsTicks(t *testing.T) {
	src := &fakeSource{}
	r := New(src, &memSink{}, Options{})

	ticks(r, 0, 5)
	assert.Equal(t, 0, r.Pending())

	src.setFix(steadyFix())
	const n = 45
	ticks(r, 5, n-5)

	total := len(r.Samples()) + r.Pending()
	assert.Equal(t, n-5, total)
	assert.Equal(t, "20261016.093000.100", r.Samples()[0].Time, "first sample is tick #6")
}

func TestSequenceGrowsInWholeBatches(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	r := New(src, &memSink{}, Options{})

	for i := 0; i < 137; i++ {
		ticks(r, i, 1)
		assert.Zero(t, len(r.Samples())%DefaultBatchSize)
	}
	assert.Len(t, r.Samples(), 120)
	assert.Equal(t, 17, r.Pending())
}

func TestWriteFailureKeepsSamples(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{fail: true}
	var flushed []Status
	r := New(src, sink, Options{OnFlush: func(st Status) { flushed = append(flushed, st) }})

	assert.NotPanics(t, func() { ticks(r, 0, 20) })
	assert.Len(t, r.Samples(), 20)
	assert.Equal(t, 0, sink.count())

	st := r.Status()
	assert.Equal(t, 1, st.FailedFlushes)
	assert.Equal(t, "disk full", st.LastError)

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	ticks(r, 20, 20)
	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.last, 40, "retry carries the batch that failed earlier")

	st = r.Status()
	assert.Equal(t, 1, st.Flushes)
	assert.Empty(t, st.LastError)
	require.Len(t, flushed, 2)
	assert.Equal(t, 40, flushed[1].Samples)
}

func TestRepeatedFlushIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{}
	r := New(src, sink, Options{})
	ticks(r, 0, 20)

	r.Flush()
	r.Flush()

	require.Equal(t, 3, sink.count())
	assert.Equal(t, sink.writes[0], sink.writes[1])
	assert.Equal(t, sink.writes[1], sink.writes[2])
}

func TestSnapshotNotAffectedByLaterAnnotation(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{}
	r := New(src, sink, Options{})
	ticks(r, 0, 20)

	written := sink.last
	r.Handle(HeadingUpdated{Value: 5, Accuracy: 1})
	assert.Nil(t, written[19].MagneticHeading)
}

func TestTickCarriesLatestReliableHeading(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	r := New(src, &memSink{}, Options{})

	src.heading, src.haveHeading = gps.Heading{MagneticHeading: 91, Accuracy: 4}, true
	ticks(r, 0, 1)
	src.heading = gps.Heading{MagneticHeading: 180, Accuracy: -1}
	ticks(r, 1, 1)

	latest, _ := r.Latest()
	assert.Nil(t, latest.MagneticHeading)

	r.Flush()
	samples := r.Samples()
	require.Len(t, samples, 2)
	require.NotNil(t, samples[0].MagneticHeading)
	assert.Equal(t, 91.0, *samples[0].MagneticHeading)
}

func TestStopFlushesPartialBatch(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{}
	r := New(src, sink, Options{SessionID: "s1"})
	ticks(r, 0, 27)
	require.Equal(t, 1, sink.count())

	r.Stop()
	require.Equal(t, 2, sink.count())
	assert.Len(t, sink.last, 27)
	assert.True(t, r.Status().Stopped)

	// ignored after stop
	ticks(r, 27, 40)
	assert.Len(t, r.Samples(), 27)
	assert.Equal(t, 0, r.Pending())

	r.Stop()
	assert.Equal(t, 2, sink.count())
}

func TestStopWithEmptyBatchDoesNotWrite(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{}
	r := New(src, sink, Options{})
	ticks(r, 0, 20)

	r.Stop()
	assert.Equal(t, 1, sink.count())
}

func TestRunAppliesHeadingsAndFlushesOnCancel(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	sink := &memSink{}
	r := New(src, sink, Options{BatchSize: 5})

	headings := make(chan gps.Heading, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Millisecond, headings) }()

	require.Eventually(t, func() bool { return len(r.Samples()) >= 5 }, 2*time.Second, time.Millisecond)
	headings <- gps.Heading{MagneticHeading: 12, Accuracy: 1}
	require.Eventually(t, func() bool {
		for _, s := range r.Samples() {
			if s.MagneticHeading != nil && *s.MagneticHeading == 12 {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.True(t, r.Status().Stopped)
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, len(r.Samples()), len(sink.last))
}

func TestDeferredSinkCountsOnlyReportedWrites(t *testing.T) {
	src := &fakeSource{}
	src.setFix(steadyFix())
	var seen []Status
	r := New(src, &memSink{}, Options{
		Deferred: true,
		OnFlush:  func(st Status) { seen = append(seen, st) },
	})

	ticks(r, 0, 40)
	st := r.Status()
	assert.Equal(t, 2, st.Queued)
	assert.Equal(t, 0, st.Flushes)
	assert.True(t, st.LastFlush.IsZero())

	r.ReportWrite(errors.New("disk full"))
	st = r.Status()
	assert.Equal(t, 0, st.Flushes)
	assert.Equal(t, 1, st.FailedFlushes)
	assert.Equal(t, "disk full", st.LastError)

	r.ReportWrite(nil)
	st = r.Status()
	assert.Equal(t, 1, st.Flushes)
	assert.Empty(t, st.LastError)
	assert.False(t, st.LastFlush.IsZero())

	require.Len(t, seen, 4)
	assert.Equal(t, 1, seen[2].FailedFlushes, "write outcomes are broadcast too")
}
