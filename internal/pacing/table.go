// Package pacing holds the tunable delivery policy: how emotion and intensity
// stretch or shorten the pauses and typing time of a reply.
package pacing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Intensity bounds.
const (
	MinIntensity = 1
	MaxIntensity = 4
)

//go:embed default_table.yaml
var defaultTableYAML []byte

// Modifier scales the base pacing of one message part.
type Modifier struct {
	SpeedMultiplier float64 `yaml:"speed" json:"speedMultiplier"`
	PauseMultiplier float64 `yaml:"pause" json:"pauseMultiplier"`
}

// Identity leaves pacing untouched.
var Identity = Modifier{SpeedMultiplier: 1, PauseMultiplier: 1}

// Table maps (emotion, intensity) to a Modifier. Emotions missing from the table
// use the Fallback row.
type Table struct {
	Fallback map[int]Modifier            `yaml:"fallback"`
	Emotions map[string]map[int]Modifier `yaml:"emotions"`
}

// ClampIntensity forces i into [MinIntensity, MaxIntensity].
func ClampIntensity(i int) int {
	if i < MinIntensity {
		return MinIntensity
	}
	if i > MaxIntensity {
		return MaxIntensity
	}
	return i
}

// Lookup returns the modifier for emotion at intensity. The emotion is matched
// case-insensitively; a missing cell yields Identity.
func (t Table) Lookup(emotion string, intensity int) Modifier {
	intensity = ClampIntensity(intensity)

	row, ok := t.Emotions[normalizeEmotion(emotion)]
	if !ok {
		row = t.Fallback
	}
	if m, ok := row[intensity]; ok {
		return m
	}
	return Identity
}

// DefaultTable returns a fresh copy of the built-in table.
func DefaultTable() Table {
	table, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("pacing: invalid embedded table: %v", err))
	}
	return table
}

// LoadTable reads a YAML table from path.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read pacing table: %w", err)
	}
	table, err := ParseTable(data)
	if err != nil {
		return Table{}, fmt.Errorf("parse pacing table %s: %w", path, err)
	}
	return table, nil
}

// ParseTable decodes and validates a YAML table.
func ParseTable(data []byte) (Table, error) {
	var raw Table
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Table{}, err
	}

	if err := validateRow("fallback", raw.Fallback); err != nil {
		return Table{}, err
	}

	table := Table{
		Fallback: raw.Fallback,
		Emotions: make(map[string]map[int]Modifier, len(raw.Emotions)),
	}
	for emotion, row := range raw.Emotions {
		key := normalizeEmotion(emotion)
		if key == "" {
			return Table{}, fmt.Errorf("empty emotion name")
		}
		if err := validateRow(key, row); err != nil {
			return Table{}, err
		}
		table.Emotions[key] = row
	}
	return table, nil
}

func validateRow(name string, row map[int]Modifier) error {
	for intensity, m := range row {
		if intensity < MinIntensity || intensity > MaxIntensity {
			return fmt.Errorf("%s: intensity %d outside [%d, %d]", name, intensity, MinIntensity, MaxIntensity)
		}
		if m.SpeedMultiplier <= 0 || m.PauseMultiplier <= 0 {
			return fmt.Errorf("%s/%d: multipliers must be positive", name, intensity)
		}
	}
	return nil
}

func normalizeEmotion(emotion string) string {
	return strings.ToLower(strings.TrimSpace(emotion))
}
