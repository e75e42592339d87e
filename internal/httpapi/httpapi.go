package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trymwestin/nestga/internal/core/auth"
	"github.com/trymwestin/nestga/internal/core/devices"
	"github.com/trymwestin/nestga/internal/core/nest"
	"github.com/trymwestin/nestga/internal/dropcam"
)

// Server is the HTTP API server.
type Server struct {
	client   *nest.Client
	cams     *dropcam.Client
	sessions *auth.SessionStore
	corsAll  bool
	log      *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP API server.
func NewServer(
	client *nest.Client,
	cams *dropcam.Client,
	sessions *auth.SessionStore,
	corsAll bool,
	log *slog.Logger,
) *Server {
	s := &Server{
		client:   client,
		cams:     cams,
		sessions: sessions,
		corsAll:  corsAll,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if corsAll {
		s.upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if !s.corsAll {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleGetStatus)
	s.mux.HandleFunc("GET /api/structures", s.handleGetStructures)
	s.mux.HandleFunc("GET /api/thermostats", s.handleGetThermostats)
	s.mux.HandleFunc("GET /api/cameras", s.handleGetCameras)
	s.mux.HandleFunc("GET /api/protects", s.handleGetProtects)
	s.mux.HandleFunc("GET /api/cameras/{id}/snapshot", s.handleGetSnapshot)
	s.mux.HandleFunc("GET /api/events", s.handleGetEvents)

	s.mux.HandleFunc("POST /api/structures/{id}/away", s.handleSetAway)
	s.mux.HandleFunc("POST /api/structures/{id}/eta", s.handleSetETA)
	s.mux.HandleFunc("POST /api/structures/{id}/eta/cancel", s.handleCancelETA)
	s.mux.HandleFunc("POST /api/thermostats/{id}/temperature", s.handleSetTemperature)
	s.mux.HandleFunc("POST /api/thermostats/{id}/mode", s.handleSetMode)
	s.mux.HandleFunc("POST /api/cameras/{id}/streaming", s.handleSetStreaming)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Views ---

func structureView(st *devices.Structure) map[string]interface{} {
	v := map[string]interface{}{
		"id":               st.Serial(),
		"name":             st.Name(),
		"away":             st.Away(),
		"country_code":     st.CountryCode(),
		"postal_code":      st.PostalCode(),
		"time_zone":        st.TimeZone(),
		"security_state":   st.SecurityState(),
		"thermostat_count": st.ThermostatCount(),
	}
	if begin, ok := st.ETABegin(); ok {
		v["eta_begin"] = begin
	}
	return v
}

func thermostatView(t *devices.Thermostat) map[string]interface{} {
	v := map[string]interface{}{
		"id":                  t.Serial(),
		"name":                t.Name(),
		"structure_id":        t.StructureID(),
		"online":              t.Online(),
		"temperature_scale":   t.TemperatureScale(),
		"current_temperature": t.Temperature(),
		"target_temperature":  t.Target(),
		"humidity":            t.Humidity(),
		"mode":                t.Mode(),
		"hvac_state":          t.HvacState(),
		"fan":                 t.Fan(),
		"has_leaf":            t.HasLeaf(),
		"can_heat":            t.CanHeat(),
		"can_cool":            t.CanCool(),
		"has_fan":             t.HasFan(),
		"is_locked":           t.IsLocked(),
	}
	if t.Mode() == "heat-cool" {
		r := t.TargetRange()
		v["target_temperature_low"] = r.Low
		v["target_temperature_high"] = r.High
	}
	return v
}

func cameraView(cam *devices.Camera) map[string]interface{} {
	v := map[string]interface{}{
		"id":                       cam.Serial(),
		"name":                     cam.Name(),
		"structure_id":             cam.StructureID(),
		"online":                   cam.Online(),
		"is_streaming":             cam.IsStreaming(),
		"is_video_history_enabled": cam.IsVideoHistoryEnabled(),
		"is_audio_enabled":         cam.IsAudioEnabled(),
		"model":                    cam.Model(),
		"web_url":                  cam.WebURL(),
		"snapshot_url":             cam.SnapshotURL(),
		"motion_detected":          cam.MotionDetected(),
		"sound_detected":           cam.SoundDetected(),
		"person_detected":          cam.PersonDetected(),
	}
	if evt := cam.LastEvent(); evt != nil {
		if start, ok := evt.StartTime(); ok {
			v["last_event"] = map[string]interface{}{
				"start_time": start,
				"has_motion": evt.HasMotion(),
				"has_sound":  evt.HasSound(),
				"has_person": evt.HasPerson(),
				"is_ongoing": evt.IsOngoing(),
			}
		}
	}
	return v
}

func protectView(a *devices.SmokeCoAlarm) map[string]interface{} {
	return map[string]interface{}{
		"id":             a.Serial(),
		"name":           a.Name(),
		"structure_id":   a.StructureID(),
		"online":         a.Online(),
		"smoke_status":   a.SmokeStatus(),
		"co_status":      a.COStatus(),
		"battery_health": a.BatteryHealth(),
		"color_status":   a.ColorStatus(),
	}
}

// --- Handlers ---

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Current()
	s.writeJSON(w, map[string]interface{}{
		"authenticated": sess.Valid(),
		"user_id":       sess.UserID,
		"structures":    len(s.client.Structures()),
		"thermostats":   len(s.client.Thermostats()),
		"cameras":       len(s.client.Cameras()),
		"protects":      len(s.client.SmokeCoAlarms()),
	})
}

func (s *Server) handleGetStructures(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]interface{}, 0)
	for _, st := range s.client.Structures() {
		out = append(out, structureView(st))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleGetThermostats(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]interface{}, 0)
	for _, t := range s.client.Thermostats() {
		out = append(out, thermostatView(t))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleGetCameras(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]interface{}, 0)
	for _, cam := range s.client.Cameras() {
		out = append(out, cameraView(cam))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleGetProtects(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]interface{}, 0)
	for _, a := range s.client.SmokeCoAlarms() {
		out = append(out, protectView(a))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cam, ok := s.client.Camera(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown camera: "+id)
		return
	}

	img, err := s.cams.Snapshot(r.Context(), id, cam.IsVideoHistoryEnabled())
	if err != nil && len(img) == 0 {
		s.writeError(w, http.StatusBadGateway, "snapshot failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(img)
}

type awayBody struct {
	Away string `json:"away"`
}

func (s *Server) handleSetAway(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.client.Structure(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown structure: "+id)
		return
	}

	var body awayBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := st.SetAway(r.Context(), body.Away); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type etaBody struct {
	TripID        string  `json:"trip_id"`
	ETAMinutes    float64 `json:"eta_minutes"`
	WindowMinutes float64 `json:"eta_window_minutes"`
}

func (s *Server) handleSetETA(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.client.Structure(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown structure: "+id)
		return
	}

	var body etaBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.ETAMinutes <= 0 {
		s.writeError(w, http.StatusBadRequest, "eta_minutes must be positive")
		return
	}

	now := time.Now().UTC()
	tripID := body.TripID
	if tripID == "" {
		tripID = fmt.Sprintf("trip_%d", now.Unix())
	}
	begin := now.Add(time.Duration(body.ETAMinutes * float64(time.Minute)))
	var end time.Time
	if body.WindowMinutes > 0 {
		end = begin.Add(time.Duration(body.WindowMinutes * float64(time.Minute)))
	}

	if err := st.SetETA(r.Context(), tripID, begin, end); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok", "trip_id": tripID})
}

type etaCancelBody struct {
	TripID string `json:"trip_id"`
}

func (s *Server) handleCancelETA(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.client.Structure(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown structure: "+id)
		return
	}

	var body etaCancelBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := st.CancelETA(r.Context(), body.TripID); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type temperatureBody struct {
	Value float64  `json:"value"`
	Low   *float64 `json:"low"`
	High  *float64 `json:"high"`
}

func (s *Server) handleSetTemperature(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := s.client.Thermostat(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown thermostat: "+id)
		return
	}

	var body temperatureBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	var err error
	if body.Low != nil && body.High != nil {
		err = t.SetTargetRange(r.Context(), *body.Low, *body.High)
	} else {
		err = t.SetTarget(r.Context(), body.Value)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type modeBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := s.client.Thermostat(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown thermostat: "+id)
		return
	}

	var body modeBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := t.SetMode(r.Context(), body.Mode); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type streamingBody struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetStreaming(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.client.Camera(id); !ok {
		s.writeError(w, http.StatusNotFound, "unknown camera: "+id)
		return
	}

	var body streamingBody
	if err := s.readJSON(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.cams.SetStreaming(r.Context(), id, body.Enabled); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// handleGetEvents upgrades to a websocket and streams bus events until the
// client disconnects.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsub := s.client.Bus().Subscribe(128)
	defer unsub()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				s.log.Debug("websocket write failed, closing", "error", err)
				return
			}
		}
	}
}
