package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"tiltbot/internal/sim"
)

// AckResponse acknowledges an accepted command.
type AckResponse struct {
	Status    string  `json:"status"`
	Command   string  `json:"command"`
	Requested string  `json:"requested,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Command     string   `json:"command"`
	CommandName string   `json:"command_name"`
	Addr        string   `json:"addr"`
	Tick        uint64   `json:"tick"`
	Position    *sim.Vec `json:"position,omitempty"`
	Velocity    *sim.Vec `json:"velocity,omitempty"`
	Speed       float64  `json:"speed"`
	Clients     int      `json:"clients"`
}

// command handles /command?cmd=X. A missing cmd means stop and an
// unrecognized one is stored as stop.
func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	raw, given := "S", false
	if v := r.FormValue("cmd"); v != "" {
		raw, given = v, true
	}

	cmd, ok := sim.ParseCommand(raw)
	if !ok {
		s.cfg.Logger.Warnw("unrecognized command, treating as stop", "token", raw, "remote", r.RemoteAddr)
	}
	s.cfg.Store.Set(cmd)
	s.cfg.Logger.Infow("remote command", "command", cmd.String(), "remote", r.RemoteAddr)

	now := s.cfg.Clock.Now()
	ack := AckResponse{
		Status:    "success",
		Command:   cmd.String(),
		Timestamp: float64(now.Unix()) + float64(now.Nanosecond())/1e9,
	}
	if given && raw != cmd.String() {
		ack.Requested = raw
	}
	writeJSON(w, ack)
}

func (s *Server) status() StatusResponse {
	cmd := s.cfg.Store.Get()
	resp := StatusResponse{
		Command:     cmd.String(),
		CommandName: cmd.Name(),
		Addr:        s.cfg.Addr,
	}
	if s.cfg.Status != nil {
		if f, ok := s.cfg.Status.Latest(); ok {
			resp.Tick = f.Tick
			resp.Position = &f.Position
			resp.Velocity = &f.Velocity
			resp.Speed = f.Speed()
		}
	}
	if s.cfg.Hub != nil {
		resp.Clients = s.cfg.Hub.Clients()
	}
	return resp
}

func (s *Server) statusJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

type legendEntry struct {
	Token string
	Name  string
}

var legend = func() []legendEntry {
	out := make([]legendEntry, 0, len(sim.Commands))
	for _, c := range sim.Commands {
		name := c.Name()
		out = append(out, legendEntry{Token: c.String(), Name: strings.ToUpper(name[:1]) + name[1:]})
	}
	return out
}()

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Robot Control Server</title>
  <meta http-equiv="refresh" content="2">
  <style>
    body { background: #1a1a1a; color: #fff; font-family: Arial; margin: 40px; }
    .status { background: #2a2a2a; padding: 20px; border-radius: 10px; }
    .cmd { font-size: 24px; color: #0f0; font-weight: bold; }
  </style>
</head>
<body>
  <div class="status">
    <h1>Robot Control Server</h1>
    <p class="cmd">Current Command: {{.Status.Command}}</p>
    <p><strong>Server:</strong> {{.Status.Addr}}</p>
    {{- with .Status.Position}}
    <p><strong>Position:</strong> ({{printf "%.0f" .X}}, {{printf "%.0f" .Y}})</p>
    {{- end}}
    <p><strong>Commands:</strong></p>
    <ul>
    {{- range .Legend}}
      <li><strong>{{.Token}}</strong> = {{.Name}}</li>
    {{- end}}
    </ul>
    <p>Send <code>/command?cmd=X</code> from the tilt controller, or use WASD in the simulator.</p>
  </div>
</body>
</html>
`))

func (s *Server) statusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Status StatusResponse
		Legend []legendEntry
	}{s.status(), legend}
	if err := statusTmpl.Execute(w, data); err != nil {
		s.cfg.Logger.Warnw("render status page", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
