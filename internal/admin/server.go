package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"swarm-gcs/internal/logging"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/planning"
	"swarm-gcs/internal/sim"
	"swarm-gcs/internal/station"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the operator intents over HTTP.
type Server struct {
	Sim     *sim.Simulator
	Metrics http.Handler
	Stream  http.Handler
	tpl     *template.Template
	mux     *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

// NewServer wires the API around s. metrics and stream may be nil, in
// which case /metrics and /ws are not served.
func NewServer(s *sim.Simulator, metrics, stream http.Handler) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"deref": func(v *float64) float64 {
			if v == nil {
				return 0
			}
			return *v
		},
	}).ParseFS(content, "templates/index.html"))
	srv := &Server{Sim: s, Metrics: metrics, Stream: stream, tpl: tpl, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /audit", s.handleAudit)
	s.mux.HandleFunc("POST /commands", s.handleCommand)
	s.mux.HandleFunc("POST /select", s.handleSelect)

	s.mux.HandleFunc("POST /teams", s.handleFormTeam)
	s.mux.HandleFunc("DELETE /teams/members/{drone}", s.handleDetach)

	s.mux.HandleFunc("POST /waypoints", s.handleAddWaypoint)
	s.mux.HandleFunc("PATCH /waypoints/{id}", s.handleEditWaypoint)
	s.mux.HandleFunc("DELETE /waypoints/{id}", s.handleDeleteWaypoint)

	s.mux.HandleFunc("POST /home", s.handleSetHome)
	s.mux.HandleFunc("POST /stations", s.handleAddStation)
	s.mux.HandleFunc("PATCH /stations/{id}", s.handleMoveStation)

	s.mux.HandleFunc("GET /sequences/{key}", s.handleGetSequence)
	s.mux.HandleFunc("PUT /sequences/{key}", s.handleReplaceSequence)
	s.mux.HandleFunc("DELETE /sequences/{key}", s.handleClearSequence)
	s.mux.HandleFunc("POST /sequences/{key}/active", s.handleSetActive)
	s.mux.HandleFunc("POST /sequences/{key}/play", s.handlePlay)
	s.mux.HandleFunc("POST /sequences/{key}/pause", s.handlePause)

	if s.Metrics != nil {
		s.mux.Handle("GET /metrics", s.Metrics)
	}
	if s.Stream != nil {
		s.mux.Handle("GET /ws", s.Stream)
	}
}

// Handler returns the API's root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is done. Request contexts carry ctx's
// logger.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("admin api listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, s.Sim.Snapshot()); err != nil {
		logging.FromContext(r.Context()).Error("render index", "err", err)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Snapshot())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Audit())
}

// commandRequest is either a label ("Goto WP #1 (spd 60 km/h, alt 30 m)")
// or a structured command named by Type. An empty Key targets the current
// selection.
type commandRequest struct {
	Key     string `json:"key"`
	Command string `json:"command"`
	Type    string `json:"type"`
	Confirm bool   `json:"confirm"`

	WaypointID int                `json:"waypoint_id"`
	StationID  int                `json:"station_id"`
	Mode       mission.HomeMode   `json:"mode"`
	TargetID   int                `json:"target_id"`
	Anchor     planning.Anchor    `json:"anchor"`
	RadiusM    float64            `json:"radius_m"`
	DiameterM  float64            `json:"diameter_m"`
	BearingDeg float64            `json:"bearing_deg"`
	PeriodMin  float64            `json:"period_min"`
	Direction  planning.Direction `json:"direction"`
	AltM       float64            `json:"alt_m"`
	SpeedKmh   float64            `json:"speed_kmh"`
}

var simpleTypes = map[string]mission.Action{
	"arm":     mission.Arm,
	"disarm":  mission.Disarm,
	"takeoff": mission.Takeoff,
	"land":    mission.Land,
	"hold":    mission.HoldPosition,
}

func (req commandRequest) build() (mission.Command, error) {
	if req.Command != "" {
		return mission.Parse(req.Command)
	}
	if a, ok := simpleTypes[req.Type]; ok {
		return mission.Simple{Action: a}, nil
	}
	switch req.Type {
	case "goto":
		return mission.GotoWaypoint{WaypointID: req.WaypointID, SpeedKmh: req.SpeedKmh, AltM: req.AltM}, nil
	case "home":
		return mission.ReturnHome{StationID: req.StationID, Mode: req.Mode}, nil
	case "follow":
		return mission.Follow{TargetID: req.TargetID}, nil
	case "orbit":
		return mission.Orbit{
			Anchor:    req.Anchor,
			RadiusM:   req.RadiusM,
			AltM:      req.AltM,
			PeriodMin: req.PeriodMin,
			Direction: req.Direction,
		}, nil
	case "flank":
		return mission.Flank{
			Anchor:     req.Anchor,
			DiameterM:  req.DiameterM,
			BearingDeg: req.BearingDeg,
			AltM:       req.AltM,
			SpeedKmh:   req.SpeedKmh,
		}, nil
	}
	return nil, fmt.Errorf("type %q: %w", req.Type, mission.ErrUnknownCommand)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decode(w, r, &req) {
		return
	}
	key, err := s.targetKey(req.Key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cmd, err := req.build()
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Sim.Issue(key, cmd, sim.IssueOptions{Confirmed: req.Confirm})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) targetKey(raw string) (mission.Key, error) {
	if raw == "" {
		return s.Sim.SelectedKey()
	}
	return mission.ParseKey(raw)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.Sim.ClearSelection()
		writeJSON(w, http.StatusOK, s.Sim.Selection())
		return
	}
	key, err := mission.ParseKey(req.Key)
	if err == nil {
		err = s.Sim.Select(key)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Sim.Selection())
}

func (s *Server) handleFormTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Drones []int `json:"drones"`
	}
	if !decode(w, r, &req) {
		return
	}
	team, err := s.Sim.FormTeam(req.Drones)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "drone")
	if !ok {
		return
	}
	res, err := s.Sim.DetachFromTeam(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type waypointRequest struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Name *string  `json:"name"`
}

func (s *Server) handleAddWaypoint(w http.ResponseWriter, r *http.Request) {
	var req waypointRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	writeJSON(w, http.StatusCreated, s.Sim.AddWaypoint(*req.Lat, *req.Lng, name))
}

func (s *Server) handleEditWaypoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req waypointRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		wp  mission.Waypoint
		err error
	)
	if req.Lat != nil || req.Lng != nil {
		cur, found := findWaypoint(s.Sim.Waypoints(), id)
		if !found {
			writeError(w, r, fmt.Errorf("waypoint %d: %w", id, sim.ErrUnknownWaypoint))
			return
		}
		lat, lng := cur.Lat, cur.Lng
		if req.Lat != nil {
			lat = *req.Lat
		}
		if req.Lng != nil {
			lng = *req.Lng
		}
		if wp, err = s.Sim.MoveWaypoint(id, lat, lng); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Name != nil {
		if wp, err = s.Sim.RenameWaypoint(id, *req.Name); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if wp.ID == 0 {
		cur, found := findWaypoint(s.Sim.Waypoints(), id)
		if !found {
			writeError(w, r, fmt.Errorf("waypoint %d: %w", id, sim.ErrUnknownWaypoint))
			return
		}
		wp = cur
	}
	writeJSON(w, http.StatusOK, wp)
}

func findWaypoint(wps []mission.Waypoint, id int) (mission.Waypoint, bool) {
	for _, wp := range wps {
		if wp.ID == id {
			return wp, true
		}
	}
	return mission.Waypoint{}, false
}

func (s *Server) handleDeleteWaypoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	cleared, err := s.Sim.DeleteWaypoint(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

type stationRequest struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Alt  float64 `json:"alt"`
}

func (s *Server) handleSetHome(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.Sim.SetUserHome(req.Lat, req.Lng, req.Alt))
}

func (s *Server) handleAddStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusCreated, s.Sim.AddStation(req.Name, req.Lat, req.Lng, req.Alt))
}

func (s *Server) handleMoveStation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req station.PositionUpdate
	if !decode(w, r, &req) {
		return
	}
	st, err := s.Sim.MoveStation(id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) pathKey(w http.ResponseWriter, r *http.Request) (mission.Key, bool) {
	key, err := mission.ParseKey(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return key, true
}

type sequenceResponse struct {
	Key      mission.Key       `json:"key"`
	Steps    []string          `json:"steps"`
	Playback sim.PlaybackState `json:"playback"`
}

func (s *Server) sequence(key mission.Key) sequenceResponse {
	plan, _ := s.Sim.Sequence(key)
	steps := plan.Steps
	if steps == nil {
		steps = []string{}
	}
	return sequenceResponse{Key: key, Steps: steps, Playback: s.Sim.PlaybackState(key)}
}

func (s *Server) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.sequence(key))
}

func (s *Server) handleReplaceSequence(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	var req struct {
		Steps []string `json:"steps"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Sim.ReplaceSequence(key, req.Steps); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sequence(key))
}

func (s *Server) handleClearSequence(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	s.Sim.ClearSequence(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Sim.SetActiveIndex(key, req.Index); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sequence(key))
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	res, err := s.Sim.Play(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	key, ok := s.pathKey(w, r)
	if !ok {
		return
	}
	res, err := s.Sim.Pause(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s", name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusOf maps simulator errors to HTTP statuses. Playback refusals are
// checked first as they wrap the missing entity's error.
func statusOf(err error) int {
	switch {
	case errors.Is(err, sim.ErrUnsupportedPlayback),
		errors.Is(err, sim.ErrCooldown),
		errors.Is(err, sim.ErrNotConfirmed),
		errors.Is(err, sim.ErrEmptySequence):
		return http.StatusConflict
	case errors.Is(err, sim.ErrUnknownDrone),
		errors.Is(err, sim.ErrUnknownStation),
		errors.Is(err, sim.ErrUnknownWaypoint),
		errors.Is(err, sim.ErrUnknownTeam),
		errors.Is(err, mission.ErrNotInTeam),
		errors.Is(err, planning.ErrUnresolvedAnchor):
		return http.StatusNotFound
	case errors.Is(err, mission.ErrInvalidKey),
		errors.Is(err, mission.ErrUnknownCommand),
		errors.Is(err, sim.ErrTeamTooSmall),
		errors.Is(err, sim.ErrNothingSelected):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("admin request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
