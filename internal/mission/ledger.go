package mission

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Assignment is the last command told to a drone.
type Assignment struct {
	Command  string    `json:"command"`
	IssuedAt time.Time `json:"issued_at"`
}

// AuditEntry is one issued command as recorded in the audit log.
type AuditEntry struct {
	ID       string    `json:"id"`
	DroneID  int       `json:"drone_id"`
	Key      Key       `json:"key"`
	Command  string    `json:"command"`
	Source   string    `json:"source"`
	IssuedAt time.Time `json:"issued_at"`
}

// Plan is a user-authored command sequence for one selection key.
type Plan struct {
	Steps     []string  `json:"steps"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger records what each drone was told to do and what the operator
// planned per selection.
type Ledger struct {
	assigned map[int]Assignment
	audit    []AuditEntry
	planned  map[Key]*Plan
	newID    func() string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		assigned: make(map[int]Assignment),
		planned:  make(map[Key]*Plan),
		newID:    uuid.NewString,
	}
}

// Assign records cmd as the drone's assigned command and appends it to the
// audit log.
func (l *Ledger) Assign(droneID int, key Key, cmd Command, source string, at time.Time) AuditEntry {
	label := cmd.Label()
	l.assigned[droneID] = Assignment{Command: label, IssuedAt: at}
	e := AuditEntry{ID: l.newID(), DroneID: droneID, Key: key, Command: label, Source: source, IssuedAt: at}
	l.audit = append(l.audit, e)
	return e
}

// Assigned returns the drone's last assigned command.
func (l *Ledger) Assigned(droneID int) (Assignment, bool) {
	a, ok := l.assigned[droneID]
	return a, ok
}

// Mismatch reports whether the drone is doing something other than what
// it was told. Drones never commanded do not mismatch.
func (l *Ledger) Mismatch(droneID int, current string) bool {
	a, ok := l.assigned[droneID]
	return ok && a.Command != current
}

// Audit returns a copy of the audit log.
func (l *Ledger) Audit() []AuditEntry {
	return append([]AuditEntry(nil), l.audit...)
}

// Append adds cmd to the key's planned sequence.
func (l *Ledger) Append(key Key, cmd Command, at time.Time) {
	p, ok := l.planned[key]
	if !ok {
		p = &Plan{}
		l.planned[key] = p
	}
	p.Steps = append(p.Steps, cmd.Label())
	p.UpdatedAt = at
}

// Replace swaps the whole sequence. Every label must parse; on error the
// sequence is left untouched.
func (l *Ledger) Replace(key Key, labels []string, at time.Time) error {
	steps := make([]string, 0, len(labels))
	for i, label := range labels {
		cmd, err := Parse(label)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, cmd.Label())
	}
	l.planned[key] = &Plan{Steps: steps, UpdatedAt: at}
	return nil
}

// Clear drops the key's sequence.
func (l *Ledger) Clear(key Key) {
	delete(l.planned, key)
}

// Planned returns a copy of the key's sequence.
func (l *Ledger) Planned(key Key) (Plan, bool) {
	p, ok := l.planned[key]
	if !ok {
		return Plan{}, false
	}
	return Plan{Steps: append([]string(nil), p.Steps...), UpdatedAt: p.UpdatedAt}, true
}

// Step parses the step at index i of the key's sequence.
func (l *Ledger) Step(key Key, i int) (Command, bool) {
	p, ok := l.planned[key]
	if !ok || i < 0 || i >= len(p.Steps) {
		return nil, false
	}
	cmd, err := Parse(p.Steps[i])
	if err != nil {
		return nil, false
	}
	return cmd, true
}

// Keys returns every key with a planned sequence, sorted.
func (l *Ledger) Keys() []Key {
	keys := make([]Key, 0, len(l.planned))
	for k := range l.planned {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
