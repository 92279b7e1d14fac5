package sim

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"swarm-gcs/internal/config"
	"swarm-gcs/internal/geo"
	"swarm-gcs/internal/mission"
	"swarm-gcs/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// Controller is what the console drives. *Simulator implements it.
type Controller interface {
	IssueLocalCommand(key mission.Key, action mission.Action, confirmed bool) (IssueResult, error)
	IssueReturnHome(key mission.Key, stationID int, mode mission.HomeMode) (IssueResult, error)
	IssueLabel(key mission.Key, label string, confirmed bool) (IssueResult, error)
	SelectDrone(id int) error
	Play(key mission.Key) (IssueResult, error)
	Pause(key mission.Key) (IssueResult, error)
}

var _ Controller = (*Simulator)(nil)

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// stateMsg carries a refresh summary.
type stateMsg struct{ telemetry.StateRow }

// snapshotMsg carries the read model of one refresh.
type snapshotMsg struct{ Snapshot }

// adminMsg reports admin API status.
type adminMsg struct{ active bool }

type setControllerMsg struct{ ctrl Controller }

// resultMsg reports a console command once the controller returned.
type resultMsg struct {
	what   string
	key    mission.Key
	action mission.Action
	res    IssueResult
	err    error
}

const (
	maxLogLines     = 1000
	highAltM        = 60.0
	defaultMapZoom  = 16.0
	minMapZoom      = 10.0
	maxMapZoom      = 20.0
	mapCellAspect   = 2.0
	scaleBarChars   = 10
	tableRowsShown  = 8
	panelWidthShare = 0.4
)

const (
	bgRed    = "\x1b[41m"
	bgGreen  = "\x1b[42m"
	bgYellow = "\x1b[43m"
)

// TUIWriter renders the ground station in a bubbletea console.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(row telemetry.TelemetryRow) error {
	battColor := colorGreen
	switch {
	case row.Battery < 20:
		battColor = colorRed
	case row.Battery < 50:
		battColor = colorYellow
	}
	line := fmt.Sprintf("%s[%s]%s %sdrone=%d%s %slat=%.5f%s %slon=%.5f%s %salt=%.1f%s %shdg=%.0f%s %sbatt=%.1f%s %scmd=%q%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, row.DroneID, colorReset,
		colorGreen, row.Lat, colorReset,
		colorYellow, row.Lon, colorReset,
		colorMagenta, row.Alt, colorReset,
		colorCyan, row.Heading, colorReset,
		battColor, row.Battery, colorReset,
		colorGray, row.Command, colorReset,
	)
	if row.Armed {
		line += fmt.Sprintf(" %sarmed%s", colorRed, colorReset)
	}
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteBatch outputs multiple telemetry rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteCommand implements CommandWriter.
func (w *TUIWriter) WriteCommand(row telemetry.CommandRow) error {
	line := fmt.Sprintf("%s[%s]%s %sCMD%s drone=%d key=%s src=%s %q",
		colorGray, row.IssuedAt.Format(time.RFC3339), colorReset,
		colorMagenta, colorReset,
		row.DroneID, row.SelectionKey, row.Source, row.Command)
	w.program.Send(logMsg{line: line})
	return nil
}

// WriteState implements StateWriter.
func (w *TUIWriter) WriteState(row telemetry.StateRow) error {
	w.program.Send(stateMsg{StateRow: row})
	return nil
}

// WriteSnapshot implements SnapshotWriter.
func (w *TUIWriter) WriteSnapshot(s Snapshot) error {
	w.program.Send(snapshotMsg{Snapshot: s})
	return nil
}

// SetAdminStatus updates the admin API indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetController lets the console issue commands.
func (w *TUIWriter) SetController(c Controller) {
	w.program.Send(setControllerMsg{ctrl: c})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg        *config.SimulationConfig
	ctrl       Controller
	table      table.Model
	vp         viewport.Model
	logs       []string
	snap       Snapshot
	haveSnap   bool
	state      telemetry.StateRow
	admin      bool
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
	header     string
	status     string

	input     textinput.Model
	inputOpen bool
	confirm   mission.Key

	showMap     bool
	mapCenter   geo.LatLng
	mapZoom     float64
	mapCentered bool
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	cols := []table.Column{
		{Title: "ID", Width: 3},
		{Title: "Team", Width: 4},
		{Title: "Command", Width: 30},
		{Title: "Alt", Width: 6},
		{Title: "Batt", Width: 6},
		{Title: "%/min", Width: 6},
		{Title: "Left", Width: 6},
		{Title: "RSSI", Width: 5},
		{Title: "Age", Width: 5},
		{Title: "Flags", Width: 6},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(tableRowsShown+1), table.WithFocused(true))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
		mapZoom:    defaultMapZoom,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.table.SetWidth(int(float64(msg.Width) * (1 - panelWidthShare)))
		m.relayout()
		m.refreshViewport()
	case tea.KeyMsg:
		return m.handleKey(msg)
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case stateMsg:
		m.state = msg.StateRow
	case snapshotMsg:
		m.snap = msg.Snapshot
		m.haveSnap = true
		m.state = msg.State
		m.table.SetRows(droneRows(m.snap))
		if !m.mapCentered {
			m.centerMap()
		}
		m.relayout()
	case adminMsg:
		m.admin = msg.active
	case setControllerMsg:
		m.ctrl = msg.ctrl
	case resultMsg:
		m.applyResult(msg)
		m.relayout()
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputOpen {
		switch msg.Type {
		case tea.KeyEnter:
			label := strings.TrimSpace(m.input.Value())
			m.inputOpen = false
			m.relayout()
			if label == "" {
				return m, nil
			}
			return m, m.issue("command", func(c Controller, k mission.Key) (IssueResult, error) {
				return c.IssueLabel(k, label, false)
			})
		case tea.KeyEsc:
			m.inputOpen = false
			m.relayout()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	if m.confirm != "" {
		key := m.confirm
		m.confirm = ""
		m.relayout()
		if msg.String() != "y" {
			m.status = "disarm cancelled"
			return m, nil
		}
		ctrl := m.ctrl
		return m, func() tea.Msg {
			res, err := ctrl.IssueLocalCommand(key, mission.Disarm, true)
			return resultMsg{what: "disarm", key: key, action: mission.Disarm, res: res, err: err}
		}
	}
	if m.help {
		switch msg.String() {
		case "?", "h", "esc":
			m.help = false
			m.relayout()
		}
		return m, nil
	}
	if m.showMap {
		if done, mm := m.mapKey(msg.String()); done {
			return mm, nil
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.table.MoveUp(1)
		return m, m.selectRow()
	case "down", "j":
		m.table.MoveDown(1)
		return m, m.selectRow()
	case "a":
		return m, m.local(mission.Arm)
	case "d":
		return m, m.local(mission.Disarm)
	case "t":
		return m, m.local(mission.Takeoff)
	case "l":
		return m, m.local(mission.Land)
	case " ":
		return m, m.local(mission.HoldPosition)
	case "r":
		return m, m.issue("return home", func(c Controller, k mission.Key) (IssueResult, error) {
			return c.IssueReturnHome(k, 0, "")
		})
	case "p":
		return m, m.issue("play", Controller.Play)
	case "P":
		return m, m.issue("pause", Controller.Pause)
	case ":":
		m.input = textinput.New()
		m.input.Placeholder = "Goto WP #1 (spd 60 km/h, alt 30 m)"
		m.input.Focus()
		m.inputOpen = true
		m.relayout()
		return m, textinput.Blink
	case "m":
		m.showMap = !m.showMap
		m.relayout()
		return m, nil
	case "w":
		m.wrap = !m.wrap
		m.refreshViewport()
		return m, nil
	case "s":
		m.autoscroll = !m.autoscroll
		if m.autoscroll {
			m.vp.GotoBottom()
		}
		return m, nil
	case "h", "?":
		m.help = true
		return m, nil
	}
	if !m.autoscroll {
		switch msg.String() {
		case "pgdown", "ctrl+n":
			m.vp.LineDown(10)
		case "pgup", "ctrl+p":
			m.vp.LineUp(10)
		case "J":
			m.vp.LineDown(1)
		case "K":
			m.vp.LineUp(1)
		}
	}
	return m, nil
}

func (m *tuiModel) mapKey(k string) (bool, tea.Model) {
	step := m.metersPerCell() * 10
	switch k {
	case "+", "=":
		m.mapZoom = math.Min(maxMapZoom, m.mapZoom+0.5)
	case "-":
		m.mapZoom = math.Max(minMapZoom, m.mapZoom-0.5)
	case "left":
		m.mapCenter = geo.DestinationPoint(m.mapCenter.Lat, m.mapCenter.Lng, 270, step)
	case "right":
		m.mapCenter = geo.DestinationPoint(m.mapCenter.Lat, m.mapCenter.Lng, 90, step)
	case "ctrl+up":
		m.mapCenter = geo.DestinationPoint(m.mapCenter.Lat, m.mapCenter.Lng, 0, step)
	case "ctrl+down":
		m.mapCenter = geo.DestinationPoint(m.mapCenter.Lat, m.mapCenter.Lng, 180, step)
	case "c":
		m.centerMap()
	default:
		return false, *m
	}
	return true, *m
}

// key is the selection commands apply to: the simulator's selection, or
// the drone under the table cursor.
func (m tuiModel) key() (mission.Key, bool) {
	if k, ok := m.snap.Selection.Key(); ok {
		return k, true
	}
	if id, ok := m.cursorDrone(); ok {
		return mission.DroneKey(id), true
	}
	return "", false
}

func (m tuiModel) cursorDrone() (int, bool) {
	row := m.table.SelectedRow()
	if row == nil {
		return 0, false
	}
	id, err := strconv.Atoi(row[0])
	return id, err == nil
}

// The simulator may be writing to this console while it holds its lock,
// so every call into the controller runs as a command, off the update loop.
func (m tuiModel) issue(what string, fn func(Controller, mission.Key) (IssueResult, error)) tea.Cmd {
	ctrl := m.ctrl
	key, ok := m.key()
	if ctrl == nil || !ok {
		return nil
	}
	return func() tea.Msg {
		res, err := fn(ctrl, key)
		return resultMsg{what: what, key: key, res: res, err: err}
	}
}

func (m tuiModel) local(a mission.Action) tea.Cmd {
	ctrl := m.ctrl
	key, ok := m.key()
	if ctrl == nil || !ok {
		return nil
	}
	return func() tea.Msg {
		res, err := ctrl.IssueLocalCommand(key, a, false)
		return resultMsg{what: string(a), key: key, action: a, res: res, err: err}
	}
}

func (m tuiModel) selectRow() tea.Cmd {
	ctrl := m.ctrl
	id, ok := m.cursorDrone()
	if ctrl == nil || !ok {
		return nil
	}
	return func() tea.Msg {
		err := ctrl.SelectDrone(id)
		return resultMsg{what: "select", key: mission.DroneKey(id), err: err}
	}
}

func (m *tuiModel) applyResult(r resultMsg) {
	switch {
	case r.action == mission.Disarm && errors.Is(r.err, ErrNotConfirmed):
		m.confirm = r.key
		m.status = fmt.Sprintf("%s is airborne: disarm anyway? (y/n)", r.key)
	case r.err != nil:
		m.status = fmt.Sprintf("%s %s failed: %v", r.what, r.key, r.err)
	case r.what == "select":
		m.snap.Selection = Selection{Kind: SelectionDrone}
		if id, ok := r.key.Drone(); ok {
			m.snap.Selection.ID = id
		}
		m.status = fmt.Sprintf("selected %s", r.key)
	default:
		m.status = fmt.Sprintf("%s → %s: %q to %v", r.what, r.key, r.res.Command, r.res.Issued)
		if len(r.res.Skipped) > 0 {
			m.status += fmt.Sprintf(" (skipped %d)", len(r.res.Skipped))
		}
	}
}

func droneRows(s Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(s.Drones))
	for _, d := range s.Drones {
		row := table.Row{strconv.Itoa(d.ID), "-", "", "", "", "-", "-", "-", "-", droneFlags(d)}
		if d.TeamID != 0 {
			row[1] = strconv.Itoa(d.TeamID)
		}
		if d.Latest != nil {
			row[2] = d.Latest.Command
			row[3] = fmt.Sprintf("%.1f", d.Latest.Alt)
			row[4] = fmt.Sprintf("%.1f", d.Latest.Battery)
			if d.Latest.RSSI != nil {
				row[7] = fmt.Sprintf("%.0f", *d.Latest.RSSI)
			}
		}
		if d.BatteryRate != nil {
			row[5] = fmt.Sprintf("%.2f", *d.BatteryRate)
		}
		if d.RemainingMin != nil {
			row[6] = fmt.Sprintf("%.0fm", *d.RemainingMin)
		}
		if d.AgeSec != nil {
			row[8] = fmt.Sprintf("%.1f", *d.AgeSec)
		}
		rows = append(rows, row)
	}
	return rows
}

func droneFlags(d DroneStatus) string {
	var b strings.Builder
	if d.Armed {
		b.WriteByte('A')
	}
	if d.InAir {
		b.WriteByte('F')
	}
	if d.Stale {
		b.WriteByte('S')
	}
	if d.Mismatch {
		b.WriteByte('!')
	}
	if d.CooldownMs > 0 {
		b.WriteByte('C')
	}
	return b.String()
}

func (m *tuiModel) relayout() {
	m.header = m.renderHeader()
	used := lipgloss.Height(m.header) + lipgloss.Height(m.renderBottom()) + 3
	if m.inputOpen || m.confirm != "" {
		used++
	}
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.width)
	body := m.vp.View()
	if m.showMap {
		body = m.renderMap(m.width, m.vp.Height)
	}
	sections := []string{m.header, divider, body, divider}
	switch {
	case m.inputOpen:
		sections = append(sections, "Command (Enter to issue, Esc to cancel): "+m.input.View())
	case m.confirm != "":
		sections = append(sections, fmt.Sprintf("%sDisarm airborne %s? (y/n)%s", colorRed, m.confirm, colorReset))
	}
	sections = append(sections, m.renderBottom())
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	panelWidth := int(float64(m.width)*panelWidthShare) - 1
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("│")
	return lipgloss.JoinHorizontal(lipgloss.Top, m.table.View(), sep, m.renderPanel(panelWidth))
}

// renderPanel shows the selected entity, its sequence and pending notices.
func (m tuiModel) renderPanel(width int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", m.snap.SessionID)
	key, ok := m.key()
	if e := m.snap.Selected; e != nil && e.Latest != nil {
		members := ""
		if e.Kind == SelectionTeam {
			members = fmt.Sprintf(" %v", e.Members)
		}
		fmt.Fprintf(&b, "Selected %s%s alt=%.1f batt=%.1f armed=%t\n", e.Key, members, e.Latest.Alt, e.Latest.Battery, e.Latest.IsArmed())
	} else if ok {
		fmt.Fprintf(&b, "Cursor %s\n", key)
	} else {
		b.WriteString("Nothing selected\n")
	}
	if ok {
		plan := m.snap.Planned[key]
		pb := m.snap.Playback[key]
		state := "paused"
		if pb.Playing {
			state = "playing"
		}
		fmt.Fprintf(&b, "Sequence (%d steps, %s)\n", len(plan.Steps), state)
		for i, step := range plan.Steps {
			marker := "  "
			if i == pb.ActiveIndex {
				marker = "▶ "
			}
			fmt.Fprintf(&b, "%s%d. %s\n", marker, i+1, step)
		}
	}
	for _, n := range m.snap.Notices {
		fmt.Fprintf(&b, "%s! %s%s\n", colorYellow, n.Message, colorReset)
	}
	out := strings.TrimRight(b.String(), "\n")
	if width > 0 {
		out = wordwrap.String(out, width)
	}
	return out
}

func (m tuiModel) renderBottom() string {
	indicator := func(on bool) string {
		c := lipgloss.Color("9")
		if on {
			c = lipgloss.Color("10")
		}
		return lipgloss.NewStyle().Foreground(c).Render("●")
	}
	staleColor := colorGreen
	if m.state.StaleDrones > 0 {
		staleColor = colorRed
	}
	state := fmt.Sprintf("%sSTATE%s drones=%d %sstale=%d%s armed=%d teams=%d wps=%d %smismatch=%d%s",
		colorBlue, colorReset,
		m.state.Drones,
		staleColor, m.state.StaleDrones, colorReset,
		m.state.ArmedDrones, m.state.Teams, m.state.Waypoints,
		colorYellow, m.state.Mismatches, colorReset)
	line := fmt.Sprintf("%s | Admin %s | Wrap %s | Scroll %s | Map %s | h help",
		state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.showMap))
	if m.status != "" {
		return m.status + "\n" + line
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q      quit",
		" ↑/↓    select drone",
		" a      arm",
		" d      disarm (asks before disarming in flight)",
		" t      takeoff",
		" l      land",
		" space  hold position",
		" r      return home",
		" p / P  play / pause the selection's sequence step",
		" :      type a command label",
		" m      toggle map view",
		" +/-    zoom map, ←/→ ctrl+↑/↓ pan, c recenter",
		" w      toggle wrap",
		" s      toggle auto-scroll",
		" h/?    toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" J/K         scroll one line",
		" pgdown/pgup scroll a page",
	}
	return strings.Join(lines, "\n")
}

func headingIcon(h float64) string {
	switch h = geo.NormalizeHeading(h); {
	case h >= 45 && h < 135:
		return ">"
	case h >= 135 && h < 225:
		return "v"
	case h >= 225 && h < 315:
		return "<"
	default:
		return "^"
	}
}

func altitudeIcon(h, alt float64) string {
	icon := headingIcon(h)
	if alt >= highAltM {
		switch icon {
		case "^":
			return "▲"
		case ">":
			return "▶"
		case "v":
			return "▼"
		case "<":
			return "◀"
		}
	}
	return icon
}

func batteryBG(b float64) string {
	switch {
	case b < 25:
		return bgRed
	case b < 75:
		return bgYellow
	default:
		return bgGreen
	}
}

// centerMap puts the swarm's mean position in the middle of the map.
func (m *tuiModel) centerMap() {
	var lat, lng float64
	n := 0
	for _, d := range m.snap.Drones {
		if d.Latest != nil {
			lat += d.Latest.Lat
			lng += d.Latest.Lng
			n++
		}
	}
	if n == 0 {
		if m.cfg == nil {
			return
		}
		m.mapCenter = geo.LatLng{Lat: m.cfg.Swarm.CenterLat, Lng: m.cfg.Swarm.CenterLng}
		return
	}
	m.mapCenter = geo.LatLng{Lat: lat / float64(n), Lng: lng / float64(n)}
	m.mapCentered = true
}

func (m tuiModel) metersPerCell() float64 {
	px := geo.MetersToPixelsAt(m.mapCenter.Lat, m.mapCenter.Lng, 100, geo.WebMercator{Zoom: m.mapZoom})
	if px == 0 {
		return 1
	}
	return 100 / px
}

// renderMap draws stations, waypoints and drones on a character grid. One
// cell is one projected pixel wide and mapCellAspect pixels tall.
func (m tuiModel) renderMap(width, height int) string {
	if !m.haveSnap {
		return "No position data"
	}
	if height < 3 || width < 10 {
		return ""
	}
	rows := height - 2
	proj := geo.WebMercator{Zoom: m.mapZoom}
	c := proj.Project(m.mapCenter.Lat, m.mapCenter.Lng)
	cell := func(lat, lng float64) (int, int, bool) {
		p := proj.Project(lat, lng)
		x := int(math.Round(p.X-c.X)) + width/2
		y := int(math.Round((p.Y-c.Y)/mapCellAspect)) + rows/2
		return x, y, x >= 0 && x < width && y >= 0 && y < rows
	}

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, width)
		for j := range grid[i] {
			grid[i][j] = "."
		}
	}
	for _, fp := range m.snap.Flights {
		for _, p := range fp.Path {
			if x, y, ok := cell(p.Lat, p.Lng); ok {
				grid[y][x] = colorGray + "·" + colorReset
			}
		}
	}
	for _, wp := range m.snap.Waypoints {
		if x, y, ok := cell(wp.Lat, wp.Lng); ok {
			grid[y][x] = colorCyan + "W" + colorReset
		}
	}
	for _, st := range m.snap.Stations {
		if x, y, ok := cell(st.Lat, st.Lng); ok {
			grid[y][x] = colorMagenta + "H" + colorReset
		}
	}
	drones := append([]DroneStatus(nil), m.snap.Drones...)
	sort.Slice(drones, func(i, j int) bool { return drones[i].ID < drones[j].ID })
	for _, d := range drones {
		if d.Latest == nil {
			continue
		}
		x, y, ok := cell(d.Latest.Lat, d.Latest.Lng)
		if !ok {
			continue
		}
		fg := ""
		if d.Stale {
			fg = colorGray
		}
		grid[y][x] = batteryBG(d.Latest.Battery) + fg + altitudeIcon(d.Latest.Heading, d.Latest.Alt) + colorReset
	}

	var b strings.Builder
	fmt.Fprintf(&b, "center %.5f,%.5f zoom %.1f N↑\n", m.mapCenter.Lat, m.mapCenter.Lng, m.mapZoom)
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Scale: |%s| %.0fm  H=station W=waypoint ▲=above %.0fm %s█%s>75%% %s█%s>25%% %s█%s low",
		strings.Repeat("-", scaleBarChars), m.metersPerCell()*scaleBarChars, highAltM,
		bgGreen, colorReset, bgYellow, colorReset, bgRed, colorReset)
	return b.String()
}
