package mission

import (
	"errors"
	"sort"
)

var (
	ErrUnknownTeam  = errors.New("unknown team")
	ErrTeamTooSmall = errors.New("a team needs at least two drones")
	ErrNotInTeam    = errors.New("drone is not in a team")
)

// Team is a group of at least two drones. Members are sorted.
type Team struct {
	ID      int   `json:"id"`
	Members []int `json:"members"`
}

// Teams tracks team membership; a drone belongs to at most one team.
type Teams struct {
	teams     map[int]*Team
	byDrone   map[int]int
	highWater int
}

// NewTeams returns an empty team set.
func NewTeams() *Teams {
	return &Teams{teams: make(map[int]*Team), byDrone: make(map[int]int)}
}

// Ensure unions ids into one team, merging every team that already holds
// one of them. valid filters unknown drones; nil accepts all. The surviving
// team keeps the lowest merged id, or gets a fresh one.
func (t *Teams) Ensure(ids []int, valid func(int) bool) (Team, error) {
	seen := make(map[int]bool)
	var members []int
	for _, id := range ids {
		if seen[id] || (valid != nil && !valid(id)) {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return Team{}, ErrTeamTooSmall
	}

	keep := 0
	merged := make(map[int]bool)
	for _, id := range members {
		if tid, ok := t.byDrone[id]; ok {
			merged[tid] = true
			if keep == 0 || tid < keep {
				keep = tid
			}
		}
	}
	for tid := range merged {
		for _, m := range t.teams[tid].Members {
			if !seen[m] {
				seen[m] = true
				members = append(members, m)
			}
		}
		delete(t.teams, tid)
	}
	if keep == 0 {
		t.highWater++
		keep = t.highWater
	}

	sort.Ints(members)
	team := &Team{ID: keep, Members: members}
	t.teams[keep] = team
	for _, m := range members {
		t.byDrone[m] = keep
	}
	return copyTeam(team), nil
}

// DetachResult describes a detach. When the team dissolved with one drone
// left, Remaining holds it.
type DetachResult struct {
	Team      Team
	Dissolved bool
	Remaining int
}

// Detach removes droneID from its team, dissolving the team below two
// members.
func (t *Teams) Detach(droneID int) (DetachResult, error) {
	tid, ok := t.byDrone[droneID]
	if !ok {
		return DetachResult{}, ErrNotInTeam
	}
	team := t.teams[tid]
	delete(t.byDrone, droneID)
	rest := team.Members[:0:0]
	for _, m := range team.Members {
		if m != droneID {
			rest = append(rest, m)
		}
	}
	team.Members = rest
	res := DetachResult{Team: copyTeam(team)}
	if len(rest) >= 2 {
		return res, nil
	}
	res.Dissolved = true
	delete(t.teams, tid)
	for _, m := range rest {
		delete(t.byDrone, m)
	}
	if len(rest) == 1 {
		res.Remaining = rest[0]
	}
	return res, nil
}

// TeamOf returns the team holding droneID.
func (t *Teams) TeamOf(droneID int) (Team, bool) {
	tid, ok := t.byDrone[droneID]
	if !ok {
		return Team{}, false
	}
	return copyTeam(t.teams[tid]), true
}

// Get returns a team by id.
func (t *Teams) Get(id int) (Team, bool) {
	team, ok := t.teams[id]
	if !ok {
		return Team{}, false
	}
	return copyTeam(team), true
}

// List returns all teams ordered by id.
func (t *Teams) List() []Team {
	out := make([]Team, 0, len(t.teams))
	for _, team := range t.teams {
		out = append(out, copyTeam(team))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of teams.
func (t *Teams) Len() int { return len(t.teams) }

func copyTeam(team *Team) Team {
	return Team{ID: team.ID, Members: append([]int(nil), team.Members...)}
}
