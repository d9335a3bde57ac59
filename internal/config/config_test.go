package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"FACEWATCH_INFER_URL",
		"FACEWATCH_INFER_TIMEOUT",
		"FACEWATCH_INFER_INPUT_SIZE",
		"FACEWATCH_DETECT_THRESHOLD",
		"FACEWATCH_NOTIFY_PERIOD",
		"FACEWATCH_NOTIFY_THRESHOLD",
		"FACEWATCH_STAY_NOTIFIED",
		"FACEWATCH_CONTROL_ADDR",
		"FACEWATCH_DATABASE_MAX_OPEN_CONNS",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Infer.Timeout != 30*time.Second {
		t.Errorf("got infer timeout %v; want 30s", cfg.Infer.Timeout)
	}
	if cfg.Infer.InputSize != 160 {
		t.Errorf("got input size %d; want 160", cfg.Infer.InputSize)
	}
	if cfg.Watch.DetectThreshold != 0.6 {
		t.Errorf("got detect threshold %v; want 0.6", cfg.Watch.DetectThreshold)
	}
	if cfg.Watch.NotifyPeriod != 3*time.Second {
		t.Errorf("got notify period %v; want 3s", cfg.Watch.NotifyPeriod)
	}
	if cfg.Watch.NotifyThreshold != 0.5 {
		t.Errorf("got notify threshold %v; want 0.5", cfg.Watch.NotifyThreshold)
	}
	if cfg.Watch.StayNotified != 120*time.Second {
		t.Errorf("got stay notified %v; want 120s", cfg.Watch.StayNotified)
	}
	if cfg.Control.Addr != ":8080" {
		t.Errorf("got control addr %q; want :8080", cfg.Control.Addr)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("got pool limits %d/%d; want 25/5", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FACEWATCH_INFER_URL", "http://gpu-box:9000")
	t.Setenv("FACEWATCH_INFER_TIMEOUT", "5s")
	t.Setenv("FACEWATCH_CLASSIFIER_DIR", "/var/lib/facewatch/classifiers")
	t.Setenv("FACEWATCH_PEOPLE_FILE", "/etc/facewatch/people.yaml")
	t.Setenv("FACEWATCH_CAMERA_URL", "http://cam.local/stream")
	t.Setenv("FACEWATCH_DETECT_THRESHOLD", "0.8")
	t.Setenv("FACEWATCH_MASK", "true")
	t.Setenv("FACEWATCH_NOTIFY_PERIOD", "10s")
	t.Setenv("FACEWATCH_STAY_NOTIFIED", "2m")
	t.Setenv("FACEWATCH_CONTROL_ADDR", "127.0.0.1:9999")
	t.Setenv("FACEWATCH_DATABASE_URL", "postgres://watch:watch@db:5432/watch")

	cfg := Load()

	if cfg.Infer.URL != "http://gpu-box:9000" {
		t.Errorf("got infer URL %q", cfg.Infer.URL)
	}
	if cfg.Infer.Timeout != 5*time.Second {
		t.Errorf("got infer timeout %v; want 5s", cfg.Infer.Timeout)
	}
	if cfg.Watch.ClassifierDir != "/var/lib/facewatch/classifiers" {
		t.Errorf("got classifier dir %q", cfg.Watch.ClassifierDir)
	}
	if cfg.Watch.PeopleFile != "/etc/facewatch/people.yaml" {
		t.Errorf("got people file %q", cfg.Watch.PeopleFile)
	}
	if cfg.Watch.CameraURL != "http://cam.local/stream" {
		t.Errorf("got camera URL %q", cfg.Watch.CameraURL)
	}
	if cfg.Watch.DetectThreshold != 0.8 {
		t.Errorf("got detect threshold %v; want 0.8", cfg.Watch.DetectThreshold)
	}
	if !cfg.Watch.Mask {
		t.Error("mask flag not picked up")
	}
	if cfg.Watch.NotifyPeriod != 10*time.Second {
		t.Errorf("got notify period %v; want 10s", cfg.Watch.NotifyPeriod)
	}
	if cfg.Watch.StayNotified != 2*time.Minute {
		t.Errorf("got stay notified %v; want 2m", cfg.Watch.StayNotified)
	}
	if cfg.Control.Addr != "127.0.0.1:9999" {
		t.Errorf("got control addr %q", cfg.Control.Addr)
	}
	if cfg.Database.URL != "postgres://watch:watch@db:5432/watch" {
		t.Errorf("got database URL %q", cfg.Database.URL)
	}
}

func TestEnvHelpersRejectGarbage(t *testing.T) {
	t.Setenv("FACEWATCH_DETECT_THRESHOLD", "very high")
	t.Setenv("FACEWATCH_NOTIFY_PERIOD", "-4s")
	t.Setenv("FACEWATCH_INFER_INPUT_SIZE", "0")
	t.Setenv("FACEWATCH_MASK", "maybe")

	cfg := Load()

	if cfg.Watch.DetectThreshold != 0.6 {
		t.Errorf("got detect threshold %v for garbage input; want the 0.6 default", cfg.Watch.DetectThreshold)
	}
	if cfg.Watch.NotifyPeriod != 3*time.Second {
		t.Errorf("got notify period %v for a negative input; want the 3s default", cfg.Watch.NotifyPeriod)
	}
	if cfg.Infer.InputSize != 160 {
		t.Errorf("got input size %d for zero input; want the 160 default", cfg.Infer.InputSize)
	}
	if cfg.Watch.Mask {
		t.Error("mask enabled by an unparseable flag; want the false default")
	}
}
