package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldcollect-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponse struct {
	accuracy float64
	err      error
}

// stubSource answers CurrentPosition from a scripted list of responses
type stubSource struct {
	mu        sync.Mutex
	responses []stubResponse
	opts      []PositionOptions
	onCall    func(call int)
}

func (s *stubSource) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	s.mu.Lock()
	call := len(s.opts)
	s.opts = append(s.opts, opts)
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall(call)
	}
	if call >= len(s.responses) {
		return Position{}, errors.New("no scripted response")
	}
	r := s.responses[call]
	if r.err != nil {
		return Position{}, r.err
	}
	return Position{
		Latitude:  6.9271,
		Longitude: 79.8612,
		Accuracy:  r.accuracy,
		Timestamp: time.Now(),
	}, nil
}

func (s *stubSource) Watch(PositionOptions, func(Position), func(error)) (func(), error) {
	return func() {}, nil
}

func (s *stubSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opts)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 200 * time.Millisecond
	return cfg
}

func TestGetHighAccuracyFix_RetriesUntilExcellent(t *testing.T) {
	src := &stubSource{responses: []stubResponse{{accuracy: 150}, {accuracy: 80}, {accuracy: 4}}}
	tracker := NewTracker(src, testConfig())

	fix, err := tracker.GetHighAccuracyFix(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4.0, fix.Accuracy)
	assert.Equal(t, models.QualityExcellent, fix.Quality)
	assert.Equal(t, 3, src.calls())

	// first attempt may use a cached position, retries force fresh ones
	assert.Equal(t, 30*time.Second, src.opts[0].MaximumAge)
	assert.Equal(t, time.Duration(0), src.opts[1].MaximumAge)
	assert.Equal(t, time.Duration(0), src.opts[2].MaximumAge)
}

func TestGetHighAccuracyFix_ExcellentFirstAttempt(t *testing.T) {
	src := &stubSource{responses: []stubResponse{{accuracy: 3}, {accuracy: 1}}}
	tracker := NewTracker(src, testConfig())

	fix, err := tracker.GetHighAccuracyFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, fix.Accuracy)
	assert.Equal(t, 1, src.calls())
}

func TestGetHighAccuracyFix_ReturnsBestOfAttempts(t *testing.T) {
	src := &stubSource{responses: []stubResponse{{accuracy: 500}, {accuracy: 200}, {accuracy: 300}}}
	tracker := NewTracker(src, testConfig())

	fix, err := tracker.GetHighAccuracyFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200.0, fix.Accuracy)
	assert.Equal(t, models.QualityPoor, fix.Quality)
	assert.Equal(t, 3, src.calls())
}

func TestGetHighAccuracyFix_ToleratesFailedAttempts(t *testing.T) {
	src := &stubSource{responses: []stubResponse{
		{err: NewLocationError(ErrPositionUnavailable, nil)},
		{accuracy: 40},
		{err: NewLocationError(ErrTimeout, nil)},
	}}
	tracker := NewTracker(src, testConfig())

	fix, err := tracker.GetHighAccuracyFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40.0, fix.Accuracy)
	assert.Equal(t, 3, src.calls())
}

func TestGetHighAccuracyFix_PermissionDeniedStopsRetrying(t *testing.T) {
	src := &stubSource{responses: []stubResponse{
		{err: NewLocationError(ErrPermissionDenied, nil)},
		{accuracy: 4},
	}}
	tracker := NewTracker(src, testConfig())

	_, err := tracker.GetHighAccuracyFix(context.Background())

	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, ErrPermissionDenied, locErr.Code)
	assert.NotEmpty(t, locErr.Message)
	assert.Equal(t, 1, src.calls())
}

func TestGetHighAccuracyFix_CancelledReturnsBestSoFar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &stubSource{responses: []stubResponse{{accuracy: 60}, {accuracy: 2}}}
	src.onCall = func(call int) {
		if call == 0 {
			cancel()
		}
	}

	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	tracker := NewTracker(src, cfg)

	done := make(chan struct{})
	var fix models.LocationFix
	var err error
	go func() {
		defer close(done)
		fix, err = tracker.GetHighAccuracyFix(ctx)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("GetHighAccuracyFix did not return after cancellation")
	}

	// The first call itself ran under a cancelled context; the stub ignores it
	require.NoError(t, err)
	assert.Equal(t, 60.0, fix.Accuracy)
	assert.Equal(t, 1, src.calls())
}

func TestGetHighAccuracyFix_NoAttemptsReturnsUsableError(t *testing.T) {
	src := &stubSource{responses: []stubResponse{{accuracy: 2}}}
	tracker := NewTracker(src, testConfig())
	tracker.config.MaxAttempts = 0

	_, err := tracker.GetHighAccuracyFix(context.Background())
	require.Error(t, err)
	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	require.NotNil(t, locErr)
	assert.Equal(t, ErrPositionUnavailable, locErr.Code)
	assert.NotPanics(t, func() { _ = err.Error() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tracker.GetHighAccuracyFix(ctx)
	require.ErrorAs(t, err, &locErr)
	require.NotNil(t, locErr)
	assert.Equal(t, ErrTimeout, locErr.Code)
	assert.Equal(t, 0, src.calls())
}

func TestGetCurrentFix_Unsupported(t *testing.T) {
	tracker := NewTracker(nil, testConfig())

	_, err := tracker.GetCurrentFix(context.Background(), false)

	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, ErrUnsupported, locErr.Code)

	_, err = tracker.StartTracking(context.Background(), func(models.LocationFix) {}, nil)
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, ErrUnsupported, locErr.Code)
}

func TestGetCurrentFix_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	tracker := NewTracker(NewPushSource(), cfg)

	_, err := tracker.GetCurrentFix(context.Background(), true)

	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, ErrTimeout, locErr.Code)
	assert.True(t, locErr.Retryable())
}

func TestGetCurrentFix_RejectsInvalidPosition(t *testing.T) {
	src := NewPushSource()
	tracker := NewTracker(src, testConfig())

	src.Push(Position{Latitude: 123, Longitude: 0, Accuracy: 5, Timestamp: time.Now()})

	_, err := tracker.GetCurrentFix(context.Background(), false)

	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, ErrPositionUnavailable, locErr.Code)
}

func TestStartTracking_SuppressesNoisyUpdates(t *testing.T) {
	src := NewPushSource()
	tracker := NewTracker(src, testConfig())

	var got []float64
	handle, err := tracker.StartTracking(context.Background(), func(fix models.LocationFix) {
		got = append(got, fix.Accuracy)
	}, nil)
	require.NoError(t, err)
	defer handle.Stop()

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	push := func(offset time.Duration, accuracy float64) {
		src.Push(Position{Latitude: 6.92, Longitude: 79.86, Accuracy: accuracy, Timestamp: t0.Add(offset)})
	}

	push(0, 50)             // first fix always propagates
	push(1*time.Second, 50) // noisy and too soon
	push(2*time.Second, 8)  // accurate
	push(3*time.Second, 50) // noisy and too soon
	push(7*time.Second, 60) // only 5s after the accurate fix
	push(8*time.Second, 70) // too soon after the previous propagation
	push(6*time.Second, 1)  // out of order

	assert.Equal(t, []float64{50, 8, 60}, got)

	last, ok := tracker.LastFix()
	require.True(t, ok)
	assert.Equal(t, 60.0, last.Accuracy)
}

func TestStartTracking_FanOutOrderAndLateSubscribers(t *testing.T) {
	src := NewPushSource()
	tracker := NewTracker(src, testConfig())

	var order []string
	handle, err := tracker.StartTracking(context.Background(), func(models.LocationFix) {
		order = append(order, "first")
	}, nil)
	require.NoError(t, err)
	defer handle.Stop()

	tracker.Subscribe(func(models.LocationFix) { order = append(order, "second") })

	now := time.Now()
	src.Push(Position{Latitude: 6.9, Longitude: 79.8, Accuracy: 4, Timestamp: now})
	assert.Equal(t, []string{"first", "second"}, order)

	var late []models.LocationFix
	unsubscribe := tracker.Subscribe(func(fix models.LocationFix) { late = append(late, fix) })
	assert.Empty(t, late, "late subscriber must not receive an earlier fix")

	src.Push(Position{Latitude: 6.9, Longitude: 79.8, Accuracy: 4, Timestamp: now.Add(time.Second)})
	assert.Len(t, late, 1)

	unsubscribe()
	unsubscribe()
	src.Push(Position{Latitude: 6.9, Longitude: 79.8, Accuracy: 4, Timestamp: now.Add(2 * time.Second)})
	assert.Len(t, late, 1)
}

func TestStopTracking_ReleasesWatchAndIsIdempotent(t *testing.T) {
	src := NewPushSource()
	tracker := NewTracker(src, testConfig())

	calls := 0
	handle, err := tracker.StartTracking(context.Background(), func(models.LocationFix) { calls++ }, nil)
	require.NoError(t, err)
	assert.True(t, tracker.IsTracking())
	assert.Equal(t, 1, src.WatcherCount())

	tracker.StopTracking(handle)
	tracker.StopTracking(handle)
	tracker.StopTracking(nil)

	assert.False(t, tracker.IsTracking())
	assert.Equal(t, 0, src.WatcherCount())

	src.Push(Position{Latitude: 6.9, Longitude: 79.8, Accuracy: 4, Timestamp: time.Now()})
	assert.Equal(t, 0, calls)

	// A fresh start gets a fresh watch; the stale handle cannot stop it
	handle2, err := tracker.StartTracking(context.Background(), func(models.LocationFix) { calls++ }, nil)
	require.NoError(t, err)
	tracker.StopTracking(handle)
	assert.True(t, tracker.IsTracking())

	handle2.Stop()
	assert.False(t, tracker.IsTracking())
}

func TestStartTracking_ReleasedWhenContextEnds(t *testing.T) {
	src := NewPushSource()
	tracker := NewTracker(src, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := tracker.StartTracking(ctx, func(models.LocationFix) {}, nil)
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool {
		return !tracker.IsTracking() && src.WatcherCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStartTracking_DeliversErrors(t *testing.T) {
	src := NewPushSource()
	tracker := NewTracker(src, testConfig())

	var codes []ErrorCode
	handle, err := tracker.StartTracking(context.Background(), nil, func(e *LocationError) {
		codes = append(codes, e.Code)
	})
	require.NoError(t, err)
	defer handle.Stop()

	src.Fail(NewLocationError(ErrPermissionDenied, nil))
	src.Fail(errors.New("gps chip reset"))

	assert.Equal(t, []ErrorCode{ErrPermissionDenied, ErrPositionUnavailable}, codes)
}
