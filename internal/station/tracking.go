package station

import (
	"errors"
	"sync"
)

// ErrLocationUnavailable is reported when a provider stream ends without an
// explicit error.
var ErrLocationUnavailable = errors.New("location unavailable")

// Fix is one position report from a location provider. A non-nil Err ends
// tracking.
type Fix struct {
	Lat float64
	Lng float64
	Alt *float64
	Err error
}

// LocationProvider pushes fixes to fn until the returned cancel func is
// called.
type LocationProvider interface {
	Subscribe(fn func(Fix)) (cancel func())
}

// Track flags the station dynamic and follows the provider's fixes. An
// existing subscription for the station is replaced.
func (r *Registry) Track(id int, p LocationProvider) error {
	r.mu.Lock()
	st, ok := r.stations[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownStation
	}
	if cancel, ok := r.subs[id]; ok {
		cancel()
		delete(r.subs, id)
	}
	st.Dynamic = true
	// Providers may deliver synchronously, so subscribe without the lock.
	r.mu.Unlock()

	var once sync.Once
	cancel := p.Subscribe(func(f Fix) { r.applyFix(id, f, &once) })

	r.mu.Lock()
	defer r.mu.Unlock()
	if st.Dynamic {
		r.subs[id] = cancel
	} else {
		// The provider failed during Subscribe.
		cancel()
	}
	return nil
}

// StopTracking cancels the subscription and makes the station static again.
func (r *Registry) StopTracking(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok {
		return ErrUnknownStation
	}
	if cancel, ok := r.subs[id]; ok {
		cancel()
		delete(r.subs, id)
	}
	st.Dynamic = false
	return nil
}

func (r *Registry) applyFix(id int, f Fix, failed *sync.Once) {
	r.mu.Lock()
	st, ok := r.stations[id]
	if !ok || !st.Dynamic {
		r.mu.Unlock()
		return
	}
	if f.Err == nil {
		st.Lat, st.Lng = f.Lat, f.Lng
		if f.Alt != nil {
			st.Alt = *f.Alt
		}
		r.mu.Unlock()
		return
	}
	st.Dynamic = false
	if cancel, ok := r.subs[id]; ok {
		cancel()
		delete(r.subs, id)
	}
	r.mu.Unlock()
	failed.Do(func() {
		if r.notice != nil {
			r.notice(id, f.Err)
		}
	})
}

// ChannelProvider is a LocationProvider reading fixes from a channel. A
// closed channel is reported as ErrLocationUnavailable.
type ChannelProvider struct {
	C <-chan Fix
}

// Subscribe implements LocationProvider.
func (p ChannelProvider) Subscribe(fn func(Fix)) func() {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case f, ok := <-p.C:
				if !ok {
					fn(Fix{Err: ErrLocationUnavailable})
					return
				}
				fn(f)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
