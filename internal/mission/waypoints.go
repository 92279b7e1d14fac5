package mission

import (
	"errors"
	"sort"
)

var ErrUnknownWaypoint = errors.New("unknown waypoint")

// Waypoint is a map point drones can be sent to. Ids are never reused.
type Waypoint struct {
	ID   int     `json:"id"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Waypoints numbers and stores waypoints.
type Waypoints struct {
	items  map[int]*Waypoint
	lastID int
}

func NewWaypoints() *Waypoints {
	return &Waypoints{items: make(map[int]*Waypoint)}
}

// Add creates a waypoint with the next id.
func (w *Waypoints) Add(lat, lng float64, name string) Waypoint {
	w.lastID++
	wp := &Waypoint{ID: w.lastID, Name: name, Lat: lat, Lng: lng}
	w.items[wp.ID] = wp
	return *wp
}

func (w *Waypoints) Move(id int, lat, lng float64) (Waypoint, error) {
	wp, ok := w.items[id]
	if !ok {
		return Waypoint{}, ErrUnknownWaypoint
	}
	wp.Lat, wp.Lng = lat, lng
	return *wp, nil
}

func (w *Waypoints) Rename(id int, name string) (Waypoint, error) {
	wp, ok := w.items[id]
	if !ok {
		return Waypoint{}, ErrUnknownWaypoint
	}
	wp.Name = name
	return *wp, nil
}

// Delete removes a waypoint. Callers also clear relations aimed at it.
func (w *Waypoints) Delete(id int) error {
	if _, ok := w.items[id]; !ok {
		return ErrUnknownWaypoint
	}
	delete(w.items, id)
	return nil
}

func (w *Waypoints) Get(id int) (Waypoint, bool) {
	wp, ok := w.items[id]
	if !ok {
		return Waypoint{}, false
	}
	return *wp, true
}

// List returns waypoints ordered by id.
func (w *Waypoints) List() []Waypoint {
	out := make([]Waypoint, 0, len(w.items))
	for _, wp := range w.items {
		out = append(out, *wp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Waypoints) Len() int { return len(w.items) }
