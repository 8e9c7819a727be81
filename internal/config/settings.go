package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/intermernet/clubportal/internal/calendar"
)

// ClubSettings are club-level knobs that rarely change and are kept in a
// YAML file next to the data directory rather than in the environment.
type ClubSettings struct {
	// ClubName is used in mail subjects and the ICS calendar name.
	ClubName string `yaml:"club_name" json:"clubName"`

	// Timezone is the IANA timezone all calendar dates are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// ImportLocation is the placeholder location for events created by the
	// attendance importer.
	ImportLocation string `yaml:"import_location" json:"importLocation"`

	// ImportStartHour is the local start hour for events created by the
	// attendance importer.
	ImportStartHour int `yaml:"import_start_hour" json:"importStartHour"`

	// HorizonDays is the default calendar window length when a request
	// does not name one.
	HorizonDays int `yaml:"horizon_days" json:"horizonDays"`
}

// DefaultSettings returns the settings used when no file is configured.
func DefaultSettings() *ClubSettings {
	return &ClubSettings{
		ClubName:        "Sportverein",
		Timezone:        "Europe/Berlin",
		ImportLocation:  "Sportplatz",
		ImportStartHour: 19,
		HorizonDays:     31,
	}
}

// Normalize fills in missing or out-of-range values with defaults so that
// partially-filled files still behave correctly.
func (s *ClubSettings) Normalize() {
	def := DefaultSettings()
	if s.ClubName == "" {
		s.ClubName = def.ClubName
	}
	if s.Timezone == "" {
		s.Timezone = def.Timezone
	}
	if s.ImportLocation == "" {
		s.ImportLocation = def.ImportLocation
	}
	if s.ImportStartHour <= 0 || s.ImportStartHour > 23 {
		s.ImportStartHour = def.ImportStartHour
	}
	if s.HorizonDays <= 0 {
		s.HorizonDays = def.HorizonDays
	}
	if s.HorizonDays > calendar.MaxWindowDays {
		s.HorizonDays = calendar.MaxWindowDays
	}
}

// LoadSettings reads the YAML settings file at path. An empty path or a
// missing file yields the defaults.
func LoadSettings(path string) (*ClubSettings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read club settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse club settings %s: %w", path, err)
	}
	s.Normalize()
	return s, nil
}
