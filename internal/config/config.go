// Package config loads the ClassLens runtime configuration from JSON.
// Every field is a pointer so partial config files only override what they
// name; the Get* accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppConfig is the root configuration. The schema matches the
// /api/config endpoint so the same JSON serves startup configuration and
// runtime inspection.
type AppConfig struct {
	// Server params
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`

	// Classroom seat grid
	GridRows *int `json:"grid_rows,omitempty"`
	GridCols *int `json:"grid_cols,omitempty"`

	// Model artefacts
	ModelDir       *string  `json:"model_dir,omitempty"`
	FaceModelPath  *string  `json:"face_model_path,omitempty"`
	PhoneModelPath *string  `json:"phone_model_path,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`

	// Report output
	ReportDir *string `json:"report_dir,omitempty"`
}

// EmptyAppConfig returns an AppConfig with all fields unset.
func EmptyAppConfig() *AppConfig {
	return &AppConfig{}
}

// LoadAppConfig loads an AppConfig from a JSON file. The file must have a
// .json extension and stay under 1MB. Fields omitted from the JSON keep
// their defaults, so partial configs are safe.
func LoadAppConfig(path string) (*AppConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAppConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *AppConfig) Validate() error {
	if c.GridRows != nil && *c.GridRows < 1 {
		return fmt.Errorf("grid_rows must be at least 1, got %d", *c.GridRows)
	}
	if c.GridCols != nil && *c.GridCols < 1 {
		return fmt.Errorf("grid_cols must be at least 1, got %d", *c.GridCols)
	}
	if c.Listen != nil && *c.Listen == "" {
		return fmt.Errorf("listen must not be empty when set")
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be in [0,1], got %v", *c.MinConfidence)
	}
	return nil
}

// GetListen returns the HTTP listen address.
func (c *AppConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetDBPath returns the sqlite database path.
func (c *AppConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "classlens.db"
	}
	return *c.DBPath
}

// GetGridRows returns the seat grid row count.
func (c *AppConfig) GetGridRows() int {
	if c.GridRows == nil {
		return 5
	}
	return *c.GridRows
}

// GetGridCols returns the seat grid column count.
func (c *AppConfig) GetGridCols() int {
	if c.GridCols == nil {
		return 10
	}
	return *c.GridCols
}

// GetModelDir returns the directory holding trained model artefacts.
func (c *AppConfig) GetModelDir() string {
	if c.ModelDir == nil || *c.ModelDir == "" {
		return "models/engagement"
	}
	return *c.ModelDir
}

// GetFaceModelPath returns the YuNet face model path, empty when face
// detection is not configured.
func (c *AppConfig) GetFaceModelPath() string {
	if c.FaceModelPath == nil {
		return ""
	}
	return *c.FaceModelPath
}

// GetPhoneModelPath returns the phone detection model path, empty when
// phone detection is not configured.
func (c *AppConfig) GetPhoneModelPath() string {
	if c.PhoneModelPath == nil {
		return ""
	}
	return *c.PhoneModelPath
}

// GetMinConfidence returns the minimum detector confidence.
func (c *AppConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.6
	}
	return *c.MinConfidence
}

// GetReportDir returns the directory for generated report files.
func (c *AppConfig) GetReportDir() string {
	if c.ReportDir == nil || *c.ReportDir == "" {
		return "reports"
	}
	return *c.ReportDir
}
