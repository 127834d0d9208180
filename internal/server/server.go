package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/cdc-bridge/internal/bridge"
	"github.com/shaunagostinho/cdc-bridge/internal/bt"
	"github.com/shaunagostinho/cdc-bridge/internal/cdc"
	"github.com/shaunagostinho/cdc-bridge/internal/log"
	"github.com/shaunagostinho/cdc-bridge/internal/recorder"
)

// StatusRate is how often status frames are pushed to WebSocket clients.
const StatusRate = 200 * time.Millisecond

// Deps are the running components the API reports on and drives. Demo and
// Recorder may be nil.
type Deps struct {
	Emulator *cdc.Emulator
	Scanner  *cdc.Scanner
	Decoder  *cdc.Decoder
	Demo     *cdc.DemoLine
	Module   *bt.Module
	Bridge   *bridge.Bridge
	Recorder *recorder.Recorder
	Hub      *Hub
}

// Server serves the JSON status API and the /ws stream.
type Server struct {
	cfg  *Config
	deps Deps
	hub  *Hub
	log  *log.Logger

	upgrader websocket.Upgrader
}

// Status is the snapshot served by /api/status and pushed on /ws.
type Status struct {
	BT       bt.Status        `json:"bt"`
	CDC      CDCStatus        `json:"cdc"`
	Decoder  cdc.ScannerStats `json:"decoder"`
	Bridge   bridge.Snapshot  `json:"bridge"`
	Recorder RecorderStatus   `json:"recorder"`
}

// CDCStatus is the emulator status with its enums spelled out.
type CDCStatus struct {
	cdc.Status
	PlayState string `json:"playState"`
	Phase     string `json:"phase"`
	Time      string `json:"time"`
}

type RecorderStatus struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// New creates a new Server. A nil deps.Hub gets a private hub.
func New(cfg *Config, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		cfg:  cfg,
		deps: deps,
		hub:  hub,
		log:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)

	// Bluetooth module
	mux.HandleFunc("/api/cmd", s.handleCmd)
	mux.HandleFunc("/api/factory", s.handleFactory)
	mux.HandleFunc("/api/bt/reboot", s.handleReboot)
	mux.HandleFunc("/api/polling", s.handlePolling)
	mux.HandleFunc("/api/bt/action", s.handleAction)
	mux.HandleFunc("/api/bt/query", s.handleQuery)
	mux.HandleFunc("/api/audio", s.handleAudio)
	mux.HandleFunc("/api/set_basic", s.handleSetBasic)
	mux.HandleFunc("/api/set_profile", s.handleSetProfile)
	mux.HandleFunc("/api/set_hfp", s.handleSetHFP)

	// Head unit side
	mux.HandleFunc("/api/decoder", s.handleDecoder)
	mux.HandleFunc("/api/button", s.handleButton)
	return mux
}

// Run starts the HTTP server and the status broadcast loop.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Infof("listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Status collects a snapshot from every component that is wired.
func (s *Server) Status() Status {
	var st Status
	if d := s.deps; d.Module != nil {
		st.BT = d.Module.Status()
	}
	if e := s.deps.Emulator; e != nil {
		cs := e.Status()
		st.CDC = CDCStatus{
			Status:    cs,
			PlayState: cs.State.String(),
			Phase:     cs.Phase.String(),
			Time:      fmt.Sprintf("%d:%02d", cs.Minutes, cs.Seconds),
		}
	}
	if sc := s.deps.Scanner; sc != nil {
		st.Decoder = sc.Stats()
	} else if dec := s.deps.Decoder; dec != nil {
		st.Decoder.DecoderStats = dec.Stats()
	}
	if b := s.deps.Bridge; b != nil {
		st.Bridge = b.Snapshot()
	}
	if r := s.deps.Recorder; r != nil {
		st.Recorder = RecorderStatus{Enabled: r.IsEnabled(), Path: r.Path()}
	}
	return st
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(StatusRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.Clients() == 0 {
				continue
			}
			st := s.Status()
			s.hub.broadcast(Frame{Type: "status", Status: &st})
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("ws upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Initial status so the client does not wait for the first tick
	st := s.Status()
	if data, err := json.Marshal(Frame{Type: "status", Status: &st, Stamp: time.Now().UnixMilli()}); err == nil {
		client.send <- data
	}

	n := s.hub.add(client)
	s.log.Infof("ws client connected (%d total)", n)

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive, incoming messages are ignored)
	go func() {
		defer func() {
			n := s.hub.remove(client)
			s.log.Infof("ws client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, s.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.log.Warnf("config save failed: %v", err)
		}
		s.applyRuntime()
		writeOK(w)

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// applyRuntime pushes config values that take effect without a restart.
// Ports, pins and addresses need one.
func (s *Server) applyRuntime() {
	s.cfg.mu.RLock()
	level := s.cfg.Logging.Level
	rec := s.cfg.Recorder.Enabled
	s.cfg.mu.RUnlock()

	if err := s.log.SetLevel(level); err != nil {
		s.log.Warnf("config: %v", err)
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.SetEnabled(rec)
	}
}

func (s *Server) handleCmd(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req struct {
		Cmd string `json:"cmd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	if err := s.deps.Module.SendRaw(req.Cmd); err != nil {
		code := 400
		if errors.Is(err, bt.ErrNotConnected) {
			code = 503
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeOK(w)
}

func (s *Server) handleFactory(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	s.deps.Module.FactorySetup()
	writeOK(w)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	s.deps.Module.Reboot()
	writeOK(w)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req struct {
		Act string `json:"act"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Module.Action(req.Act); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	writeOK(w)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	s.deps.Module.QuerySettings()
	writeOK(w)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req bt.AudioSettings
	if !decodeBody(w, r, &req) {
		return
	}
	s.deps.Module.SetAudio(req)
	writeOK(w)
}

func (s *Server) handleSetBasic(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req bt.BasicSettings
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Module.SetBasic(req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	writeOK(w)
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req struct {
		Profile  uint16 `json:"profile"`
		AutoConn uint16 `json:"autoconn"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.deps.Module.SetProfile(req.Profile, req.AutoConn)
	writeOK(w)
}

func (s *Server) handleSetHFP(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req bt.HFPSettings
	if !decodeBody(w, r, &req) {
		return
	}
	s.deps.Module.SetHFP(req)
	writeOK(w)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handlePolling(w http.ResponseWriter, r *http.Request) {
	if !s.requireBT(w, r) {
		return
	}
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	if req.Paused {
		s.deps.Module.Poller().Pause()
	} else {
		s.deps.Module.Poller().Resume()
	}
	writeOK(w)
}

func (s *Server) handleDecoder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	if s.deps.Decoder == nil {
		http.Error(w, "decoder not running", 503)
		return
	}
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	if req.Paused {
		s.deps.Decoder.Pause()
		s.log.Infof("decoder paused")
	} else {
		s.deps.Decoder.Resume()
		s.log.Infof("decoder resumed")
	}
	writeOK(w)
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	if s.deps.Demo == nil {
		http.Error(w, "button injection needs the demo line", 409)
		return
	}
	var req struct {
		Button string `json:"button"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	b, ok := cdc.ParseButton(req.Button)
	if !ok {
		http.Error(w, "unknown button "+req.Button, 400)
		return
	}
	if err := s.deps.Demo.Press(b); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	writeOK(w)
}

func (s *Server) requireBT(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return false
	}
	if s.deps.Module == nil {
		http.Error(w, "bluetooth module not running", 503)
		return false
	}
	return true
}

// decodeBody reads a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request", 400)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), 500)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
