package model

import "time"

// Column names of the iot-sensors measurement, in the order the dashboard expects them.
const (
	FieldHeatIndex    = "heat_index"
	FieldHumidity     = "humidity"
	FieldRainDetected = "rain_detected"
	FieldRainLevel    = "rain_level"
	FieldSoilMoisture = "soil_moisture"
	FieldTemperature  = "temperature"
)

// MonitoredFields lists every nullable column a reading may carry.
var MonitoredFields = []string{
	FieldHeatIndex,
	FieldHumidity,
	FieldRainDetected,
	FieldRainLevel,
	FieldSoilMoisture,
	FieldTemperature,
}

// SensorReading is one sample of the device's sensor stream.
// A nil field means "not reported" and is never the same as zero.
type SensorReading struct {
	Time         time.Time `json:"time"`
	HeatIndex    *float64  `json:"heat_index,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	RainDetected *bool     `json:"rain_detected,omitempty"`
	RainLevel    *float64  `json:"rain_level,omitempty"`
	SoilMoisture *float64  `json:"soil_moisture,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
}

// HasData reports whether at least one monitored field is set.
func (r SensorReading) HasData() bool {
	return r.HeatIndex != nil || r.Humidity != nil || r.RainDetected != nil ||
		r.RainLevel != nil || r.SoilMoisture != nil || r.Temperature != nil
}

// Fields returns the set fields keyed by column name.
func (r SensorReading) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(MonitoredFields))
	if r.HeatIndex != nil {
		out[FieldHeatIndex] = *r.HeatIndex
	}
	if r.Humidity != nil {
		out[FieldHumidity] = *r.Humidity
	}
	if r.RainDetected != nil {
		out[FieldRainDetected] = *r.RainDetected
	}
	if r.RainLevel != nil {
		out[FieldRainLevel] = *r.RainLevel
	}
	if r.SoilMoisture != nil {
		out[FieldSoilMoisture] = *r.SoilMoisture
	}
	if r.Temperature != nil {
		out[FieldTemperature] = *r.Temperature
	}
	return out
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }
