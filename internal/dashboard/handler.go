package dashboard

import (
	"context"
	"time"

	"github.com/mschirtzinger/notesync/internal/cache"
	"github.com/mschirtzinger/notesync/internal/engine"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// NotificationData is the payload of a notification message.
type NotificationData struct {
	Level     notify.Level `json:"level"`
	Title     string       `json:"title"`
	Message   string       `json:"message,omitempty"`
	HasAction bool         `json:"has_action,omitempty"`
	Action    string       `json:"action,omitempty"`
}

// TelemetryData is the payload of a telemetry message.
type TelemetryData struct {
	Op        string  `json:"op"`
	Outcome   string  `json:"outcome"`
	Kind      string  `json:"kind,omitempty"`
	Code      string  `json:"code,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
	Retries   int     `json:"retries"`
	Error     string  `json:"error,omitempty"`
}

// OpLogData is one cache operation log entry.
type OpLogData struct {
	Seq      uint64 `json:"seq"`
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	ID       string `json:"id,omitempty"`
	Mutation string `json:"mutation,omitempty"`
}

// StatsData describes one cached collection.
type StatsData struct {
	Collection string    `json:"collection"`
	Count      int       `json:"count"`
	Loaded     bool      `json:"loaded"`
	Loading    bool      `json:"loading"`
	Pending    int       `json:"pending"`
	LoadedAt   time.Time `json:"loaded_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RefreshData reports a background reload.
type RefreshData struct {
	Collection string `json:"collection"`
	Error      string `json:"error,omitempty"`
}

// Handler turns engine activity into dashboard messages. It is a
// notify.Sink and a telemetry.Observer, so it can be passed straight into
// engine.Config.
type Handler struct {
	server *Server
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server) *Handler {
	return &Handler{server: server}
}

func (h *Handler) send(t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		h.server.config.Log.Error().Err(err).Msg("dashboard message dropped")
		return
	}
	h.server.Broadcast(msg)
}

// Notify implements notify.Sink.
func (h *Handler) Notify(n notify.Notification) {
	data := NotificationData{Level: n.Level, Title: n.Title, Message: n.Message}
	if n.Action != nil {
		data.HasAction = true
		data.Action = n.Action.Label
	}
	h.send(MessageTypeNotification, data)
}

// Observe implements telemetry.Observer.
func (h *Handler) Observe(e telemetry.Event) {
	data := TelemetryData{
		Op:        e.Op,
		Outcome:   string(e.Outcome),
		Kind:      e.Kind,
		Code:      e.Code,
		LatencyMS: float64(e.Latency) / float64(time.Millisecond),
		Retries:   e.Retries,
	}
	if e.Err != nil {
		data.Error = e.Err.Error()
	}
	h.send(MessageTypeTelemetry, data)
}

// OnRefresh reports a background reload. Its signature matches the
// engine.Refresher callback.
func (h *Handler) OnRefresh(collection string, err error) {
	data := RefreshData{Collection: collection}
	if err != nil {
		data.Error = err.Error()
	}
	h.send(MessageTypeRefresh, data)
}

// BroadcastStats sends the current collection statistics.
func (h *Handler) BroadcastStats(stats []engine.CollectionStats) {
	h.send(MessageTypeStats, ToStatsData(stats))
}

// BroadcastOpLog sends a batch of operation log entries.
func (h *Handler) BroadcastOpLog(entries []cache.OpLogEntry) {
	if len(entries) == 0 {
		return
	}
	data := make([]OpLogData, len(entries))
	for i, e := range entries {
		data[i] = OpLogData{
			Seq:      e.Seq,
			Kind:     string(e.Kind),
			Key:      e.Key.String(),
			ID:       e.ID,
			Mutation: e.Mutation,
		}
	}
	h.send(MessageTypeOpLog, data)
}

// WatchOpLog broadcasts new entries of log until ctx is cancelled.
func (h *Handler) WatchOpLog(ctx context.Context, log *cache.OpLog, interval time.Duration) error {
	return cache.WatchOpLog(ctx, log, interval, func(entries []cache.OpLogEntry) error {
		h.BroadcastOpLog(entries)
		return nil
	}, nil)
}

// ToStatsData converts engine statistics to their wire form.
func ToStatsData(stats []engine.CollectionStats) []StatsData {
	out := make([]StatsData, len(stats))
	for i, s := range stats {
		out[i] = StatsData{
			Collection: s.Collection,
			Count:      s.Count,
			Loaded:     s.State.Loaded,
			Loading:    s.State.Loading,
			Pending:    s.State.Pending,
			LoadedAt:   s.State.LoadedAt,
		}
		if s.State.Err != nil {
			out[i].Error = s.State.Err.Error()
		}
	}
	return out
}

var (
	_ notify.Sink        = (*Handler)(nil)
	_ telemetry.Observer = (*Handler)(nil)
)
