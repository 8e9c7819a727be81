package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/intermernet/clubportal/internal/calendar"
)

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if *s != *DefaultSettings() {
		t.Fatalf("got %+v, want defaults", s)
	}
}

func TestLoadSettingsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "club.yaml")
	body := "club_name: TSV Musterstadt\nimport_start_hour: 30\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ClubName != "TSV Musterstadt" {
		t.Errorf("ClubName = %q", s.ClubName)
	}
	if s.ImportStartHour != 19 {
		t.Errorf("ImportStartHour = %d, want fallback 19", s.ImportStartHour)
	}
	if s.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q", s.Timezone)
	}
}

func TestNormalizeClampsHorizon(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{0, 31},
		{-5, 31},
		{90, 90},
		{calendar.MaxWindowDays, calendar.MaxWindowDays},
		{1000, calendar.MaxWindowDays},
	} {
		s := &ClubSettings{HorizonDays: tc.in}
		s.Normalize()
		if s.HorizonDays != tc.want {
			t.Errorf("HorizonDays %d -> %d, want %d", tc.in, s.HorizonDays, tc.want)
		}
	}

	// The clamped horizon must still be a valid default window.
	s := &ClubSettings{HorizonDays: 1000}
	s.Normalize()
	now := time.Now()
	if _, err := calendar.NewWindow(now, now.AddDate(0, 0, s.HorizonDays-1), time.UTC); err != nil {
		t.Errorf("window for clamped horizon: %v", err)
	}
}

func TestNewRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("FRONTEND_URL", "http://localhost:5173")
	if _, err := New(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FRONTEND_URL", "http://localhost:5173")
	t.Setenv("DATA_PATH", "")
	t.Setenv("SERVER_ADDR", "")
	t.Setenv("CLUB_SETTINGS_FILE", "")
	t.Setenv("CLUB_TIMEZONE", "UTC")
	t.Setenv("CMS_CACHE_TTL", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_ID", "")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.ServerAddr != ":8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.DbFile != filepath.Join("data", "club.db") {
		t.Errorf("DbFile = %q", cfg.DbFile)
	}
	if cfg.Location.String() != "UTC" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.GoogleLoginEnabled() {
		t.Error("google login should be disabled without credentials")
	}
}
