package tsdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/soil-monitor/internal/metrics"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// InfluxConfig locates the bucket holding the sensor stream.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string // default "iot-sensors"
}

type InfluxStore struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	queryAPI    api.QueryAPI
	bucket      string
	measurement string
	timeout     time.Duration
}

// NewInfluxStore wraps an existing client. Every call is bounded by timeout.
func NewInfluxStore(client influxdb2.Client, cfg InfluxConfig, timeout time.Duration) (*InfluxStore, error) {
	if client == nil {
		return nil, fmt.Errorf("influx client is nil")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = "iot-sensors"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InfluxStore{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI:    client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
		timeout:     timeout,
	}, nil
}

func (s *InfluxStore) Write(ctx context.Context, points []model.SensorReading) error {
	for i, p := range points {
		if err := s.writeOne(ctx, p); err != nil {
			target := fmt.Sprintf("%s point %d/%d", s.bucket, i+1, len(points))
			return model.NewStoreError("write", target, err)
		}
	}
	return nil
}

func (s *InfluxStore) writeOne(ctx context.Context, p model.SensorReading) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("influx", "write", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, ReadingToPoint(s.measurement, p))
}

func (s *InfluxStore) Query(ctx context.Context, w model.TimeWindow) (Rows, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := s.queryAPI.Query(ctx, BuildRangeFlux(s.bucket, s.measurement, w))
	metrics.ObserveStore("influx", "query", start, err)
	if err != nil {
		cancel()
		return nil, model.NewStoreError("query", w.String(), err)
	}
	return &influxRows{res: res, cancel: cancel, target: w.String()}, nil
}

func (s *InfluxStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return model.NewStoreError("ping", s.bucket, err)
	}
	if !ok {
		return model.NewStoreError("ping", s.bucket, fmt.Errorf("influx not ready"))
	}
	return nil
}

func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

// ReadingToPoint keeps only the reported fields; absent ones are not written as zero.
func ReadingToPoint(measurement string, r model.SensorReading) *write.Point {
	return influxdb2.NewPoint(measurement, nil, r.Fields(), r.Time)
}

// BuildRangeFlux selects the window with both ends inclusive: Flux range() excludes stop,
// so stop is pushed one nanosecond past End.
func BuildRangeFlux(bucket, measurement string, w model.TimeWindow) string {
	w = w.Clamp()
	stop := w.End.Add(time.Nanosecond)
	if w.End.Equal(model.MaxTime) {
		stop = w.End
	}
	fieldFilter := make([]string, 0, len(model.MonitoredFields))
	existsFilter := make([]string, 0, len(model.MonitoredFields))
	for _, f := range model.MonitoredFields {
		fieldFilter = append(fieldFilter, fmt.Sprintf("r._field == %q", f))
		existsFilter = append(existsFilter, "exists r."+f)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => %s)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> filter(fn: (r) => %s)
  |> sort(columns: ["_time"])
`, bucket,
		w.Start.UTC().Format(time.RFC3339Nano),
		stop.UTC().Format(time.RFC3339Nano),
		measurement,
		strings.Join(fieldFilter, " or "),
		strings.Join(existsFilter, " or "))
}

type influxRows struct {
	res    *api.QueryTableResult
	cancel context.CancelFunc
	target string
	cur    model.SensorReading
	closed bool
}

func (r *influxRows) Next() bool {
	if r.closed || !r.res.Next() {
		return false
	}
	rec := r.res.Record()
	r.cur = readingFromValues(rec.Time(), rec.Values())
	return true
}

func (r *influxRows) Reading() model.SensorReading { return r.cur }

func (r *influxRows) Err() error {
	return model.NewStoreError("query", r.target, r.res.Err())
}

func (r *influxRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	defer r.cancel()
	return r.res.Close()
}

func readingFromValues(t time.Time, v map[string]interface{}) model.SensorReading {
	return model.SensorReading{
		Time:         t.UTC(),
		HeatIndex:    asFloat(v[model.FieldHeatIndex]),
		Humidity:     asFloat(v[model.FieldHumidity]),
		RainDetected: asBool(v[model.FieldRainDetected]),
		RainLevel:    asFloat(v[model.FieldRainLevel]),
		SoilMoisture: asFloat(v[model.FieldSoilMoisture]),
		Temperature:  asFloat(v[model.FieldTemperature]),
	}
}

func asFloat(v interface{}) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int64:
		f := float64(x)
		return &f
	case uint64:
		f := float64(x)
		return &f
	case bool:
		// firmware may send rain_level as a flag
		f := 0.0
		if x {
			f = 1
		}
		return &f
	}
	return nil
}

func asBool(v interface{}) *bool {
	switch x := v.(type) {
	case bool:
		return &x
	case float64:
		b := x != 0
		return &b
	case int64:
		b := x != 0
		return &b
	case uint64:
		b := x != 0
		return &b
	}
	return nil
}
