package tsdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LeonardoBeccarini/soil-monitor/internal/metrics"
	"github.com/LeonardoBeccarini/soil-monitor/internal/model"
)

// SQLiteStore keeps the stream in a local file, for development and single-box deployments.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	timeout time.Duration
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string, timeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; concurrent writers would otherwise hit SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &SQLiteStore{db: db, path: path, timeout: timeout}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time INTEGER NOT NULL,
		heat_index REAL,
		humidity REAL,
		rain_detected INTEGER,
		rain_level REAL,
		soil_moisture REAL,
		temperature REAL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(time);
	`)
	return err
}

func (s *SQLiteStore) Write(ctx context.Context, points []model.SensorReading) error {
	for i, p := range points {
		if !model.Representable(p.Time) {
			return fmt.Errorf("%w: point %d/%d time %s out of range", model.ErrInvalidRequest, i+1, len(points), p.Time)
		}
		if err := s.insert(ctx, p); err != nil {
			return model.NewStoreError("write", fmt.Sprintf("%s point %d/%d", s.path, i+1, len(points)), err)
		}
	}
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, p model.SensorReading) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("sqlite", "write", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rain interface{}
	if p.RainDetected != nil {
		rain = 0
		if *p.RainDetected {
			rain = 1
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readings (time, heat_index, humidity, rain_detected, rain_level, soil_moisture, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Time.UnixNano(), nullable(p.HeatIndex), nullable(p.Humidity), rain,
		nullable(p.RainLevel), nullable(p.SoilMoisture), nullable(p.Temperature))
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, w model.TimeWindow) (Rows, error) {
	start := time.Now()
	bounds := w.Clamp()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, heat_index, humidity, rain_detected, rain_level, soil_moisture, temperature
		FROM readings
		WHERE time >= ? AND time <= ?
		  AND (heat_index IS NOT NULL OR humidity IS NOT NULL OR rain_detected IS NOT NULL
		    OR rain_level IS NOT NULL OR soil_moisture IS NOT NULL OR temperature IS NOT NULL)
		ORDER BY time, id`, bounds.Start.UnixNano(), bounds.End.UnixNano())
	metrics.ObserveStore("sqlite", "query", start, err)
	if err != nil {
		cancel()
		return nil, model.NewStoreError("query", w.String(), err)
	}
	return &sqlRows{rows: rows, cancel: cancel, target: w.String()}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return model.NewStoreError("ping", s.path, s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqlRows struct {
	rows   *sql.Rows
	cancel context.CancelFunc
	target string
	cur    model.SensorReading
	err    error
}

func (r *sqlRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	var (
		ts                           int64
		heat, hum, level, soil, temp sql.NullFloat64
		rain                         sql.NullInt64
	)
	if err := r.rows.Scan(&ts, &heat, &hum, &rain, &level, &soil, &temp); err != nil {
		r.err = fmt.Errorf("failed to scan row: %w", err)
		return false
	}
	r.cur = model.SensorReading{
		Time:         time.Unix(0, ts).UTC(),
		HeatIndex:    fromNull(heat),
		Humidity:     fromNull(hum),
		RainLevel:    fromNull(level),
		SoilMoisture: fromNull(soil),
		Temperature:  fromNull(temp),
	}
	if rain.Valid {
		r.cur.RainDetected = model.Bool(rain.Int64 != 0)
	}
	return true
}

func (r *sqlRows) Reading() model.SensorReading { return r.cur }

func (r *sqlRows) Err() error {
	if r.err != nil {
		return model.NewStoreError("query", r.target, r.err)
	}
	return model.NewStoreError("query", r.target, r.rows.Err())
}

func (r *sqlRows) Close() error {
	defer r.cancel()
	return r.rows.Close()
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}
