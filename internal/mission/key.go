package mission

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned by ParseKey.
var ErrInvalidKey = errors.New("invalid selection key")

// Key identifies a selection: "team:<id>" or "drone:<id>".
type Key string

const (
	teamPrefix  = "team:"
	dronePrefix = "drone:"
)

func TeamKey(id int) Key  { return Key(teamPrefix + strconv.Itoa(id)) }
func DroneKey(id int) Key { return Key(dronePrefix + strconv.Itoa(id)) }

// Team returns the team id of a team key.
func (k Key) Team() (int, bool) { return k.id(teamPrefix) }

// Drone returns the drone id of a drone key.
func (k Key) Drone() (int, bool) { return k.id(dronePrefix) }

func (k Key) id(prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(string(k), prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseKey validates s as a selection key.
func ParseKey(s string) (Key, error) {
	k := Key(s)
	if _, ok := k.Team(); ok {
		return k, nil
	}
	if _, ok := k.Drone(); ok {
		return k, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidKey)
}
