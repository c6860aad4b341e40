package messages

import (
	"time"

	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// SensorData is the JSON payload the device publishes for each sample.
type SensorData struct {
	DeviceID     string    `json:"device_id,omitempty"`
	HeatIndex    *float64  `json:"heat_index,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	RainDetected *bool     `json:"rain_detected,omitempty"`
	RainLevel    *float64  `json:"rain_level,omitempty"`
	SoilMoisture *float64  `json:"soil_moisture,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Reading converts the payload; a zero timestamp is replaced with now.
func (s SensorData) Reading(now time.Time) model.SensorReading {
	t := s.Timestamp
	if t.IsZero() {
		t = now
	}
	return model.SensorReading{
		Time:         t.UTC(),
		HeatIndex:    s.HeatIndex,
		Humidity:     s.Humidity,
		RainDetected: s.RainDetected,
		RainLevel:    s.RainLevel,
		SoilMoisture: s.SoilMoisture,
		Temperature:  s.Temperature,
	}
}

// FromReading builds the payload a device would publish for r.
func FromReading(deviceID string, r model.SensorReading) SensorData {
	return SensorData{
		DeviceID:     deviceID,
		HeatIndex:    r.HeatIndex,
		Humidity:     r.Humidity,
		RainDetected: r.RainDetected,
		RainLevel:    r.RainLevel,
		SoilMoisture: r.SoilMoisture,
		Temperature:  r.Temperature,
		Timestamp:    r.Time,
	}
}
