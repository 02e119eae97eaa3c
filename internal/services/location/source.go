package location

import (
	"context"
	"sync"
	"time"
)

// PositionOptions mirrors the knobs a positioning backend understands
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration // Zero forces a fresh position
}

// Position is a raw, unqualified sample from a Source
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Heading   *float64
	Speed     *float64
	Timestamp time.Time
}

// Source is a positioning backend. Watch delivers positions until the
// returned cancel func is called; callbacks may arrive on any goroutine.
type Source interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
	Watch(opts PositionOptions, onPosition func(Position), onError func(error)) (cancel func(), err error)
}

// PositionPayload is the wire shape of a device location update
type PositionPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp int64    `json:"timestamp"` // Client-side unix milliseconds
}

// defaultAccuracy is assumed when a device omits accuracy
const defaultAccuracy = 100.0

// ToPosition converts the payload, stamping it with now when the device sent no timestamp
func (p PositionPayload) ToPosition(now time.Time) Position {
	pos := Position{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  defaultAccuracy,
		Heading:   p.Heading,
		Speed:     p.Speed,
		Timestamp: now,
	}
	if p.Accuracy != nil {
		pos.Accuracy = *p.Accuracy
	}
	if p.Timestamp > 0 {
		pos.Timestamp = time.UnixMilli(p.Timestamp)
	}
	return pos
}

type pushResult struct {
	pos Position
	err error
}

type pushWatcher struct {
	id         uint64
	onPosition func(Position)
	onError    func(error)
}

// PushSource is fed by the operator device (or any other pusher) and serves
// both single-position requests and watches from the pushed stream.
type PushSource struct {
	mu       sync.Mutex
	latest   *Position
	watchers []pushWatcher
	waiters  []chan pushResult
	nextID   uint64
	now      func() time.Time
}

// NewPushSource creates an empty push source
func NewPushSource() *PushSource {
	return &PushSource{now: time.Now}
}

// Push publishes a position to pending requests and active watches
func (s *PushSource) Push(p Position) {
	s.mu.Lock()
	latest := p
	s.latest = &latest
	waiters := s.waiters
	s.waiters = nil
	watchers := append([]pushWatcher(nil), s.watchers...)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- pushResult{pos: p}
	}
	for _, w := range watchers {
		w.onPosition(p)
	}
}

// Fail publishes a device-side error (e.g. permission revoked)
func (s *PushSource) Fail(err error) {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	watchers := append([]pushWatcher(nil), s.watchers...)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- pushResult{err: err}
	}
	for _, w := range watchers {
		if w.onError != nil {
			w.onError(err)
		}
	}
}

// CurrentPosition returns the latest pushed position if it is younger than
// opts.MaximumAge, otherwise it waits for the next push or ctx expiry.
func (s *PushSource) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	s.mu.Lock()
	if s.latest != nil && opts.MaximumAge > 0 && s.now().Sub(s.latest.Timestamp) <= opts.MaximumAge {
		p := *s.latest
		s.mu.Unlock()
		return p, nil
	}
	ch := make(chan pushResult, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case res := <-ch:
		return res.pos, res.err
	case <-ctx.Done():
		s.removeWaiter(ch)
		return Position{}, ctx.Err()
	}
}

func (s *PushSource) removeWaiter(ch chan pushResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// Watch registers callbacks for every subsequent push
func (s *PushSource) Watch(_ PositionOptions, onPosition func(Position), onError func(error)) (func(), error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers = append(s.watchers, pushWatcher{id: id, onPosition: onPosition, onError: onError})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, w := range s.watchers {
				if w.id == id {
					s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
					return
				}
			}
		})
	}, nil
}

// WatcherCount returns the number of active watches
func (s *PushSource) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// PendingRequests returns the number of CurrentPosition calls waiting for a push
func (s *PushSource) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}
