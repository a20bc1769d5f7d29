// Package dashboard provides live monitoring of the scoring service. It
// serves a status page, a JSON snapshot endpoint and a WebSocket stream
// that pushes the loaded model and served score drift to every client.
package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"wallet-risk/internal/ml"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writeWait bounds a single write to a slow client.
const writeWait = 5 * time.Second

// ModelSource describes the loaded pipeline.
type ModelSource interface {
	Info() ml.ModelInfo
}

// DriftSource reports served score drift.
type DriftSource interface {
	Status() ml.DriftStatus
}

// ModelSummary is ModelInfo without the feature list.
type ModelSummary struct {
	Version      string    `json:"version"`
	Fingerprint  string    `json:"preprocessor_fingerprint"`
	FeatureCount int       `json:"feature_count"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Snapshot is one monitoring update.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Uptime    float64         `json:"uptime_seconds"`
	Model     ModelSummary    `json:"model"`
	Drift     *ml.DriftStatus `json:"drift,omitempty"`
	Clients   int             `json:"clients"`
}

// Monitor streams snapshots to connected WebSocket clients.
type Monitor struct {
	model            ModelSource
	drift            DriftSource // nil when drift monitoring is off
	interval         time.Duration
	started          time.Time
	router           *mux.Router
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.Mutex // guards clients and serializes writes
	broadcastChannel chan Snapshot
	stopChannel      chan struct{}
	isRunning        bool
	mu               sync.Mutex
}

// NewMonitor builds the monitor routes. drift may be nil.
func NewMonitor(model ModelSource, drift DriftSource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &Monitor{
		model:            model,
		drift:            drift,
		interval:         interval,
		started:          time.Now(),
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan Snapshot, 16),
		stopChannel:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", m.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/api/status", m.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", m.handleWebSocket).Methods(http.MethodGet)
	m.router = r

	return m
}

// Handler exposes the monitor routes relative to their mount point.
func (m *Monitor) Handler() http.Handler { return m.router }

// Start begins collecting and broadcasting snapshots.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("monitor is already running")
	}

	go m.collector()
	go m.broadcaster()

	m.isRunning = true
	log.Info().Dur("interval", m.interval).Msg("Monitoring dashboard started")
	return nil
}

// Stop ends broadcasting and disconnects every client.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}
	close(m.stopChannel)

	m.clientsMu.Lock()
	for client := range m.clients {
		client.Close()
	}
	m.clients = make(map[*websocket.Conn]bool)
	m.clientsMu.Unlock()

	m.isRunning = false
	log.Info().Msg("Monitoring dashboard stopped")
}

func (m *Monitor) collector() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case m.broadcastChannel <- m.snapshot():
			default:
				// Channel full, skip this update
			}
		case <-m.stopChannel:
			return
		}
	}
}

func (m *Monitor) broadcaster() {
	for {
		select {
		case s := <-m.broadcastChannel:
			m.broadcast(s)
		case <-m.stopChannel:
			return
		}
	}
}

func (m *Monitor) snapshot() Snapshot {
	info := m.model.Info()
	s := Snapshot{
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(m.started).Seconds(),
		Model: ModelSummary{
			Version:      info.Version,
			Fingerprint:  info.Fingerprint,
			FeatureCount: info.FeatureCount,
			LoadedAt:     info.LoadedAt,
		},
	}
	if m.drift != nil {
		st := m.drift.Status()
		s.Drift = &st
	}
	m.clientsMu.Lock()
	s.Clients = len(m.clients)
	m.clientsMu.Unlock()
	return s
}

func (m *Monitor) broadcast(s Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot for broadcast")
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for client := range m.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Dropping WebSocket client")
			client.Close()
			delete(m.clients, client)
		}
	}
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.snapshot())
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	// The first snapshot goes out before the client joins the broadcast set.
	data, err := json.Marshal(m.snapshot())
	if err != nil {
		return
	}
	m.clientsMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err == nil {
		m.clients[conn] = true
	}
	m.clientsMu.Unlock()
	if err != nil {
		return
	}

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	m.clientsMu.Lock()
	delete(m.clients, conn)
	m.clientsMu.Unlock()
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Wallet Risk - Model Monitor</title>
    <meta charset="UTF-8">
    <style>
        body { font-family: sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .card { background: white; border-radius: 8px; padding: 16px; margin-bottom: 16px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .metric { display: flex; justify-content: space-between; padding: 4px 0; }
        .sev-none { color: #28a745; } .sev-medium { color: #ffc107; } .sev-high, .sev-critical { color: #dc3545; }
    </style>
</head>
<body>
    <div class="card">
        <h3>Model</h3>
        <div class="metric"><span>Version</span><span id="version">{{.Model.Version}}</span></div>
        <div class="metric"><span>Features</span><span id="features">{{.Model.FeatureCount}}</span></div>
        <div class="metric"><span>Uptime (s)</span><span id="uptime">{{printf "%.0f" .Uptime}}</span></div>
    </div>
    <div class="card">
        <h3>Score drift</h3>
        <div class="metric"><span>Window</span><span id="window">-</span></div>
        <div class="metric"><span>PSI</span><span id="psi">-</span></div>
        <div class="metric"><span>KS</span><span id="ks">-</span></div>
        <div class="metric"><span>Severity</span><span id="severity">-</span></div>
    </div>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + location.pathname.replace(/\/$/, '') + '/ws');
        ws.onmessage = (ev) => {
            const s = JSON.parse(ev.data);
            document.getElementById('version').textContent = s.model.version;
            document.getElementById('features').textContent = s.model.feature_count;
            document.getElementById('uptime').textContent = s.uptime_seconds.toFixed(0);
            if (s.drift) {
                document.getElementById('window').textContent = s.drift.window_samples;
                document.getElementById('psi').textContent = s.drift.psi.toFixed(4);
                document.getElementById('ks').textContent = s.drift.ks_statistic.toFixed(4);
                const sev = document.getElementById('severity');
                sev.textContent = s.drift.severity;
                sev.className = 'sev-' + s.drift.severity;
            }
        };
    </script>
</body>
</html>`))

func (m *Monitor) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, m.snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to render monitor page")
	}
}
