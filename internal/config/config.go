// Package config reads process settings from the environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads the given files (default ".env") without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func GetenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return d
}

func GetenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return d
}

// GetenvMs reads a millisecond count as a duration.
func GetenvMs(k string, d int) time.Duration {
	return time.Duration(GetenvInt(k, d)) * time.Millisecond
}

// Store holds the settings shared by every process touching the stores.
type Store struct {
	TSDBDriver string // influx | sqlite
	SQLitePath string

	InfluxURL         string
	InfluxToken       string
	InfluxOrg         string
	InfluxBucket      string
	InfluxMeasurement string

	ControlStore string // firebase | memory
	FirebaseURL  string
	FirebaseAuth string
	ControlPath  string

	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

func LoadStore() Store {
	return Store{
		TSDBDriver: strings.ToLower(Getenv("TSDB_DRIVER", "influx")),
		SQLitePath: Getenv("SQLITE_PATH", "soil-monitor.sqlite"),

		InfluxURL:         Getenv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:       Getenv("INFLUX_TOKEN", ""),
		InfluxOrg:         Getenv("INFLUX_ORG", "soil"),
		InfluxBucket:      Getenv("INFLUX_BUCKET", "soil-monitor"),
		InfluxMeasurement: Getenv("INFLUX_MEASUREMENT", "iot-sensors"),

		ControlStore: strings.ToLower(Getenv("CONTROL_STORE", "firebase")),
		FirebaseURL:  Getenv("FIREBASE_URL", ""),
		FirebaseAuth: Getenv("FIREBASE_AUTH", ""),
		ControlPath:  Getenv("CONTROL_PATH", "stats"),

		Timeout:         GetenvMs("STORE_TIMEOUT_MS", 5000),
		BreakerFailures: GetenvInt("CB_FAILS", 5),
		BreakerOpenFor:  GetenvMs("CB_OPEN_MS", 10000),
	}
}

// Validate reports settings that make the selected backends unusable.
func (s Store) Validate() error {
	switch s.TSDBDriver {
	case "influx":
		if s.InfluxURL == "" || s.InfluxOrg == "" || s.InfluxBucket == "" {
			return fmt.Errorf("influx config incomplete")
		}
	case "sqlite":
		if s.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unknown TSDB_DRIVER %q", s.TSDBDriver)
	}
	switch s.ControlStore {
	case "firebase":
		if s.FirebaseURL == "" {
			return fmt.Errorf("FIREBASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown CONTROL_STORE %q", s.ControlStore)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_MS must be positive")
	}
	return nil
}

// MQTT is the broker connection used by the ingest bridge and the simulator.
type MQTT struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	Topic    string
	QoS      int
}

func LoadMQTT(defaultClientID string) MQTT {
	return MQTT{
		Host:     Getenv("MQTT_HOST", "localhost"),
		Port:     GetenvInt("MQTT_PORT", 1883),
		User:     Getenv("MQTT_USER", ""),
		Password: Getenv("MQTT_PASS", ""),
		ClientID: Getenv("MQTT_CLIENT_ID", defaultClientID),
		Topic:    Getenv("MQTT_TOPIC", "sensor/readings/#"),
		QoS:      GetenvInt("MQTT_QOS", 1),
	}
}
