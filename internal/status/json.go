package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/key-timer/internal/tick"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	BootID        string         `json:"boot_id"`
	Keys          []KeyJSON      `json:"keys"`
	LastEvent     *LastEventJSON `json:"last_event,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// KeyJSON is the JSON representation of one key.
type KeyJSON struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	DurationMs *uint32 `json:"duration_ms"`
	Presses    uint64  `json:"presses"`
	Releases   uint64  `json:"releases"`
	Recoveries uint64  `json:"recoveries"`
}

// LastEventJSON is the JSON representation of the last transition.
type LastEventJSON struct {
	Index     int    `json:"index"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Buffered  int    `json:"buffered"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64           `json:"poll_ms"`
	CycleMs     int64           `json:"cycle_ms"`
	HeartbeatMs int64           `json:"heartbeat_ms"`
	Broker      string          `json:"broker"`
	HTTPAddr    string          `json:"http_addr"`
	Keys        []KeyConfigJSON `json:"keys"`
}

// KeyConfigJSON is the JSON representation of one configured key.
type KeyConfigJSON struct {
	Name   string `json:"name"`
	Pin    int    `json:"pin"`
	LED    *int   `json:"led"`
	Mirror *int   `json:"mirror,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		BootID:        snap.BootID,
		Keys:          make([]KeyJSON, 0, len(snap.Keys)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Buffered: snap.MQTTBuffered, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			CycleMs:     snap.Config.CycleMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Keys:        make([]KeyConfigJSON, 0, len(snap.Config.Keys)),
		},
	}

	for _, k := range snap.Keys {
		kj := KeyJSON{
			Index:      int(k.Index),
			Name:       k.Name,
			State:      k.State.String(),
			Presses:    k.Counts.Presses,
			Releases:   k.Counts.Releases,
			Recoveries: k.Counts.Recoveries,
		}
		if k.Duration != tick.Invalid {
			d := uint32(k.Duration)
			kj.DurationMs = &d
		}
		inner.Keys = append(inner.Keys, kj)
	}

	for _, k := range snap.Config.Keys {
		inner.Config.Keys = append(inner.Config.Keys, KeyConfigJSON{Name: k.Name, Pin: k.Pin, LED: k.LED, Mirror: k.Mirror})
	}

	if snap.LastEvent != nil {
		inner.LastEvent = &LastEventJSON{
			Index:     int(snap.LastEvent.Key),
			Event:     string(snap.LastEvent.Type),
			Timestamp: snap.LastEvent.At.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
