// Package station keeps the ground stations drones can return to or orbit.
package station

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownStation is returned for ids the registry does not hold.
var ErrUnknownStation = errors.New("unknown ground station")

// HQID is the id of the station created with the registry.
const HQID = 1

// GroundStation is a named anchor point.
type GroundStation struct {
	ID      int     `json:"id"`
	Name    string  `json:"name,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Alt     float64 `json:"alt"`
	Dynamic bool    `json:"dynamic"`
}

// PositionUpdate is a partial position change; nil fields are left alone.
type PositionUpdate struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
	Alt *float64 `json:"alt,omitempty"`
}

// UpdatePosition applies the non-nil fields of u.
func (g *GroundStation) UpdatePosition(u PositionUpdate) {
	if u.Lat != nil {
		g.Lat = *u.Lat
	}
	if u.Lng != nil {
		g.Lng = *u.Lng
	}
	if u.Alt != nil {
		g.Alt = *u.Alt
	}
}

// At builds a full PositionUpdate.
func At(lat, lng, alt float64) PositionUpdate {
	return PositionUpdate{Lat: &lat, Lng: &lng, Alt: &alt}
}

// Registry holds every ground station of a session. Stations are never
// removed. Location fixes arrive from provider goroutines, so the registry
// guards itself.
type Registry struct {
	mu       sync.Mutex
	stations map[int]*GroundStation
	nextID   int
	userHome int
	subs     map[int]func()
	notice   func(id int, err error)
}

// NewRegistry creates a registry holding hq as station HQID. notice, when
// set, receives location failures of tracked stations.
func NewRegistry(hq GroundStation, notice func(id int, err error)) *Registry {
	if hq.Name == "" {
		hq.Name = "HQ"
	}
	hq.ID = HQID
	hq.Dynamic = false
	return &Registry{
		stations: map[int]*GroundStation{HQID: &hq},
		nextID:   HQID + 1,
		subs:     make(map[int]func()),
		notice:   notice,
	}
}

// Add creates a static station and returns it.
func (r *Registry) Add(name string, lat, lng, alt float64) GroundStation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(name, lat, lng, alt)
}

func (r *Registry) addLocked(name string, lat, lng, alt float64) GroundStation {
	st := &GroundStation{ID: r.nextID, Name: name, Lat: lat, Lng: lng, Alt: alt}
	r.nextID++
	r.stations[st.ID] = st
	return *st
}

// Get returns a copy of the station.
func (r *Registry) Get(id int) (GroundStation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok {
		return GroundStation{}, false
	}
	return *st, true
}

// List returns all stations ordered by id.
func (r *Registry) List() []GroundStation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GroundStation, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Move applies a partial position update.
func (r *Registry) Move(id int, u PositionUpdate) (GroundStation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok {
		return GroundStation{}, ErrUnknownStation
	}
	st.UpdatePosition(u)
	return *st, nil
}

// SetUserHome places the user's home. A second call relocates the existing
// home instead of creating another station.
func (r *Registry) SetUserHome(lat, lng, alt float64) GroundStation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stations[r.userHome]; ok {
		st.UpdatePosition(At(lat, lng, alt))
		return *st
	}
	st := r.addLocked("Home", lat, lng, alt)
	r.userHome = st.ID
	return st
}

// UserHomeID returns the id of the user's home, or false if none was placed.
func (r *Registry) UserHomeID() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userHome, r.userHome != 0
}
