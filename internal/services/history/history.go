package history

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// KeyLayout is fixed width so keys also sort chronologically as plain strings.
const KeyLayout = "2006-01-02T15:04:05.000000000Z"

func TimeKey(t time.Time) string { return t.UTC().Format(KeyLayout) }

// Float marshals an absent value as the empty marker "".
type Float struct{ V *float64 }

func (f Float) MarshalJSON() ([]byte, error) {
	if f.V == nil {
		return []byte(`""`), nil
	}
	return json.Marshal(*f.V)
}

// Bool marshals an absent value as the empty marker "".
type Bool struct{ V *bool }

func (b Bool) MarshalJSON() ([]byte, error) {
	if b.V == nil {
		return []byte(`""`), nil
	}
	return json.Marshal(*b.V)
}

// Entry is one reshaped reading as the dashboard consumes it.
type Entry struct {
	HeatIndex    Float `json:"heat_index"`
	Humidity     Float `json:"humidity"`
	RainDetected Bool  `json:"rain_detected"`
	RainLevel    Float `json:"rain_level"`
	SoilMoisture Float `json:"soil_moisture"`
	Temperature  Float `json:"temperature"`
}

func EntryFromReading(r model.SensorReading) Entry {
	return Entry{
		HeatIndex:    Float{r.HeatIndex},
		Humidity:     Float{r.Humidity},
		RainDetected: Bool{r.RainDetected},
		RainLevel:    Float{r.RainLevel},
		SoilMoisture: Float{r.SoilMoisture},
		Temperature:  Float{r.Temperature},
	}
}

// History maps timestamp keys to entries and remembers insertion order,
// which is the store's time order.
type History struct {
	keys    []string
	entries map[string]Entry
}

func NewHistory() *History {
	return &History{entries: make(map[string]Entry)}
}

// Set stores e under key. A repeated key keeps its first position and takes the newer entry.
func (h *History) Set(key string, e Entry) {
	if _, ok := h.entries[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.entries[key] = e
}

func (h *History) Get(key string) (Entry, bool) {
	e, ok := h.entries[key]
	return e, ok
}

func (h *History) Keys() []string { return append([]string(nil), h.keys...) }

func (h *History) Len() int { return len(h.keys) }

// MarshalJSON emits an object whose members follow insertion order.
func (h *History) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range h.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(h.entries[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
