package sim

import (
	"errors"
	"fmt"

	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/planning"
)

// PlaybackState is the per-key cursor over a planned sequence. The index
// only moves when set explicitly.
type PlaybackState struct {
	ActiveIndex int  `json:"active_index"`
	Playing     bool `json:"playing"`
}

// Sequence returns the planned sequence of key.
func (s *Simulator) Sequence(key mission.Key) (mission.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Planned(key)
}

// ReplaceSequence swaps the key's sequence for labels. Every label must
// parse. The active index is kept when it still points at a step.
func (s *Simulator) ReplaceSequence(key mission.Key, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.Replace(key, labels, s.now()); err != nil {
		return err
	}
	if st, ok := s.playback[key]; ok && st.ActiveIndex >= len(labels) {
		st.ActiveIndex = 0
	}
	return nil
}

// ClearSequence drops the key's sequence and its cursor.
func (s *Simulator) ClearSequence(key mission.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSequenceLocked(key)
}

func (s *Simulator) clearSequenceLocked(key mission.Key) {
	s.ledger.Clear(key)
	delete(s.playback, key)
}

// SetActiveIndex moves the cursor to step i.
func (s *Simulator) SetActiveIndex(key mission.Key, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.ledger.Planned(key)
	if !ok || i < 0 || i >= len(plan.Steps) {
		return fmt.Errorf("%s step %d: %w", key, i, ErrEmptySequence)
	}
	s.cursorLocked(key).ActiveIndex = i
	return nil
}

// PlaybackState returns the key's cursor.
func (s *Simulator) PlaybackState(key mission.Key) PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.playback[key]; ok {
		return *st
	}
	return PlaybackState{}
}

func (s *Simulator) cursorLocked(key mission.Key) *PlaybackState {
	st, ok := s.playback[key]
	if !ok {
		st = &PlaybackState{}
		s.playback[key] = st
	}
	return st
}

// Play re-issues the step at the active index against the live drone or
// team. Steps that need context their label does not carry, such as a bare
// "Follow drone" or an anchor that no longer exists, are refused with
// ErrUnsupportedPlayback and a notice.
func (s *Simulator) Play(key mission.Key) (IssueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.cursorLocked(key)
	cmd, ok := s.ledger.Step(key, cur.ActiveIndex)
	if !ok {
		return IssueResult{Key: key}, fmt.Errorf("%s step %d: %w", key, cur.ActiveIndex, ErrEmptySequence)
	}
	if err := s.playableLocked(cmd); err != nil {
		s.addNoticeLocked("cannot play %q for %s: %v", cmd.Label(), key, err)
		s.metrics.CommandRejected("playback")
		return IssueResult{Key: key, Command: cmd.Label()}, fmt.Errorf("%w: %w", ErrUnsupportedPlayback, err)
	}
	res, err := s.issueLocked(key, cmd, IssueOptions{FromPlayback: true})
	if err != nil {
		return res, err
	}
	cur.Playing = true
	return res, nil
}

// playableLocked checks that everything the step refers to still exists.
func (s *Simulator) playableLocked(cmd mission.Command) error {
	switch c := cmd.(type) {
	case mission.Follow:
		if c.TargetID == 0 {
			return errors.New("follow target is not encoded in the step")
		}
		if _, ok := s.drones[c.TargetID]; !ok {
			return fmt.Errorf("follow target %d: %w", c.TargetID, ErrUnknownDrone)
		}
	case mission.GotoWaypoint:
		if _, ok := s.waypoints.Get(c.WaypointID); !ok {
			return fmt.Errorf("waypoint %d: %w", c.WaypointID, ErrUnknownWaypoint)
		}
	case mission.ReturnHome:
		if _, ok := s.stations.Get(c.StationID); !ok {
			return fmt.Errorf("station %d: %w", c.StationID, ErrUnknownStation)
		}
	case mission.Orbit:
		_, err := planning.Resolve(lockedResolver{s}, c.Anchor)
		return err
	case mission.Flank:
		_, err := planning.Resolve(lockedResolver{s}, c.Anchor)
		return err
	}
	return nil
}

// Pause holds every member in place. The sequence and its cursor are left
// alone.
func (s *Simulator) Pause(key mission.Key) (IssueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.playback[key]; ok {
		st.Playing = false
	}
	return s.issueLocked(key, mission.Simple{Action: mission.HoldPosition}, IssueOptions{FromPlayback: true})
}
