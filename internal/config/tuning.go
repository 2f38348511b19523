// Package config loads the optional JSON tuning file applied to the
// engine settings at startup. Fields left out of the file keep their
// built-in defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openrange-dev/spotter/internal/analysis"
)

// TuningConfig mirrors the runtime settings surface so the same JSON
// shape can be used for startup configuration and for the /settings
// endpoint.
type TuningConfig struct {
	Threshold       *int     `json:"threshold,omitempty"`
	SlotFrames      *int     `json:"slot_frames,omitempty"`
	HistorySlots    *int     `json:"history_slots,omitempty"`
	PaperScale      *float64 `json:"paper_scale,omitempty"`
	MinHoleSize     *int     `json:"min_hole_size,omitempty"`
	MaxHoleSize     *int     `json:"max_hole_size,omitempty"`
	MaxSquareErr    *float64 `json:"max_square_err,omitempty"`
	RetryLimit      *int     `json:"retry_limit,omitempty"`
	RetryGrowth     *float64 `json:"retry_growth,omitempty"`
	MarkTolerance   *int     `json:"mark_tolerance,omitempty"`
	MaxMarks        *int     `json:"max_marks,omitempty"`
	KeepCalibration *bool    `json:"keep_calibration,omitempty"`
	DisplayMode     *string  `json:"display_mode,omitempty"`
	DisplaySize     *int     `json:"display_size,omitempty"`

	// Mirror locator
	PickSize        *int     `json:"pick_size,omitempty"`
	PickTolerance   *int     `json:"pick_tolerance,omitempty"`
	MirrorMinExtent *float64 `json:"mirror_min_extent,omitempty"`
	MirrorMaxExtent *float64 `json:"mirror_max_extent,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects out-of-range values before they can reach the engine.
func (c *TuningConfig) Validate() error {
	if c.Threshold != nil && (*c.Threshold < 1 || *c.Threshold > 255) {
		return fmt.Errorf("threshold %d out of range 1..255", *c.Threshold)
	}
	if c.SlotFrames != nil && (*c.SlotFrames < 1 || *c.SlotFrames > 100) {
		return fmt.Errorf("slot_frames %d out of range 1..100", *c.SlotFrames)
	}
	if c.HistorySlots != nil && (*c.HistorySlots < 2 || *c.HistorySlots > 10) {
		return fmt.Errorf("history_slots %d out of range 2..10", *c.HistorySlots)
	}
	if c.PaperScale != nil && (*c.PaperScale < 1.0 || *c.PaperScale > 10.0) {
		return fmt.Errorf("paper_scale %v out of range 1.0..10.0", *c.PaperScale)
	}
	if c.MinHoleSize != nil && *c.MinHoleSize < 1 {
		return fmt.Errorf("min_hole_size %d must be at least 1", *c.MinHoleSize)
	}
	if c.MaxHoleSize != nil && *c.MaxHoleSize < 2 {
		return fmt.Errorf("max_hole_size %d must be at least 2", *c.MaxHoleSize)
	}
	if c.MinHoleSize != nil && c.MaxHoleSize != nil && *c.MinHoleSize > *c.MaxHoleSize {
		return fmt.Errorf("min_hole_size %d exceeds max_hole_size %d", *c.MinHoleSize, *c.MaxHoleSize)
	}
	if c.MaxSquareErr != nil && (*c.MaxSquareErr < 0 || *c.MaxSquareErr > 1) {
		return fmt.Errorf("max_square_err %v out of range 0..1", *c.MaxSquareErr)
	}
	if c.RetryLimit != nil && (*c.RetryLimit < 0 || *c.RetryLimit > 20) {
		return fmt.Errorf("retry_limit %d out of range 0..20", *c.RetryLimit)
	}
	if c.RetryGrowth != nil && *c.RetryGrowth <= 1.0 {
		return fmt.Errorf("retry_growth %v must be greater than 1.0", *c.RetryGrowth)
	}
	if c.MarkTolerance != nil && *c.MarkTolerance < 0 {
		return fmt.Errorf("mark_tolerance %d must not be negative", *c.MarkTolerance)
	}
	if c.MaxMarks != nil && *c.MaxMarks < 1 {
		return fmt.Errorf("max_marks %d must be at least 1", *c.MaxMarks)
	}
	if c.DisplayMode != nil {
		if _, err := analysis.ParseDisplayMode(*c.DisplayMode); err != nil {
			return err
		}
	}
	if c.DisplaySize != nil && (*c.DisplaySize < 64 || *c.DisplaySize > 2048) {
		return fmt.Errorf("display_size %d out of range 64..2048", *c.DisplaySize)
	}
	if c.PickSize != nil && (*c.PickSize < 2 || *c.PickSize > 100) {
		return fmt.Errorf("pick_size %d out of range 2..100", *c.PickSize)
	}
	if c.PickTolerance != nil && (*c.PickTolerance < 1 || *c.PickTolerance > 128) {
		return fmt.Errorf("pick_tolerance %d out of range 1..128", *c.PickTolerance)
	}
	if c.MirrorMinExtent != nil && (*c.MirrorMinExtent <= 0 || *c.MirrorMinExtent >= 1) {
		return fmt.Errorf("mirror_min_extent %v out of range (0,1)", *c.MirrorMinExtent)
	}
	if c.MirrorMaxExtent != nil && (*c.MirrorMaxExtent <= 0 || *c.MirrorMaxExtent > 1) {
		return fmt.Errorf("mirror_max_extent %v out of range (0,1]", *c.MirrorMaxExtent)
	}
	return nil
}

// Apply overlays the configured values onto the given settings.
func (c *TuningConfig) Apply(s analysis.Settings) analysis.Settings {
	if c.Threshold != nil {
		s.Threshold = *c.Threshold
	}
	if c.SlotFrames != nil {
		s.SlotFrames = *c.SlotFrames
	}
	if c.HistorySlots != nil {
		s.HistorySlots = *c.HistorySlots
	}
	if c.PaperScale != nil {
		s.PaperScale = *c.PaperScale
	}
	if c.MinHoleSize != nil {
		s.MinHoleSize = *c.MinHoleSize
	}
	if c.MaxHoleSize != nil {
		s.MaxHoleSize = *c.MaxHoleSize
	}
	if c.MaxSquareErr != nil {
		s.MaxSquareErr = *c.MaxSquareErr
	}
	if c.RetryLimit != nil {
		s.RetryLimit = *c.RetryLimit
	}
	if c.RetryGrowth != nil {
		s.RetryGrowth = *c.RetryGrowth
	}
	if c.MarkTolerance != nil {
		s.MarkTolerance = *c.MarkTolerance
	}
	if c.MaxMarks != nil {
		s.MaxMarks = *c.MaxMarks
	}
	if c.KeepCalibration != nil {
		s.KeepCalibration = *c.KeepCalibration
	}
	if c.DisplayMode != nil {
		if m, err := analysis.ParseDisplayMode(*c.DisplayMode); err == nil {
			s.DisplayMode = m
		}
	}
	if c.DisplaySize != nil {
		s.DisplaySize = *c.DisplaySize
	}
	if c.PickSize != nil {
		s.Locate.PickSize = *c.PickSize
	}
	if c.PickTolerance != nil {
		s.Locate.Tolerance = *c.PickTolerance
	}
	if c.MirrorMinExtent != nil {
		s.Locate.MinExtent = *c.MirrorMinExtent
	}
	if c.MirrorMaxExtent != nil {
		s.Locate.MaxExtent = *c.MirrorMaxExtent
	}
	return s
}
