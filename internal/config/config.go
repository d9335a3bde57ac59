package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Infer    InferConfig
	Watch    WatchConfig
	Control  ControlConfig
	Database DatabaseConfig
}

type InferConfig struct {
	URL       string        // inference sidecar base URL (default http://localhost:8000)
	Timeout   time.Duration // per-request timeout (default 30s)
	InputSize int           // face chip edge the embedding model expects (default 160)
}

type WatchConfig struct {
	ClassifierDir   string        // directory with classifier artifacts
	PeopleFile      string        // optional YAML people directory
	CameraURL       string        // MJPEG stream URL
	DetectThreshold float64       // minimum face detection score (default 0.6)
	Mask            bool          // ask the sidecar to remove backgrounds first
	NotifyPeriod    time.Duration // presence window span (default 3s)
	NotifyThreshold float64       // presence probability that triggers a notification (default 0.5)
	StayNotified    time.Duration // hold before the same identity notifies again (default 120s)
}

type ControlConfig struct {
	Addr string // control server listen address (default :8080)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty disables the journal
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a positive
// duration ("3s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Infer: InferConfig{
			URL:       os.Getenv("FACEWATCH_INFER_URL"),
			Timeout:   envDuration("FACEWATCH_INFER_TIMEOUT", 30*time.Second),
			InputSize: envInt("FACEWATCH_INFER_INPUT_SIZE", 160),
		},
		Watch: WatchConfig{
			ClassifierDir:   os.Getenv("FACEWATCH_CLASSIFIER_DIR"),
			PeopleFile:      os.Getenv("FACEWATCH_PEOPLE_FILE"),
			CameraURL:       os.Getenv("FACEWATCH_CAMERA_URL"),
			DetectThreshold: envFloat("FACEWATCH_DETECT_THRESHOLD", 0.6),
			Mask:            envBool("FACEWATCH_MASK", false),
			NotifyPeriod:    envDuration("FACEWATCH_NOTIFY_PERIOD", 3*time.Second),
			NotifyThreshold: envFloat("FACEWATCH_NOTIFY_THRESHOLD", 0.5),
			StayNotified:    envDuration("FACEWATCH_STAY_NOTIFIED", 120*time.Second),
		},
		Control: ControlConfig{
			Addr: envString("FACEWATCH_CONTROL_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("FACEWATCH_DATABASE_URL"),
			MaxOpenConns: envInt("FACEWATCH_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("FACEWATCH_DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}
