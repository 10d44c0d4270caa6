package structs

import (
	"io"
	"os"
	"time"

	"github.com/embermud/ember"

	goccy "github.com/goccy/go-json"
)

// WorldConfig carries the tunables the runtime core reads at startup.
type WorldConfig struct {
	// MaxScriptNesting caps reentrant script invocation depth.
	MaxScriptNesting int `json:"maxScriptNesting"`
	// SpawnRateMultiplier scales all spawn intervals, in percent.
	SpawnRateMultiplier int `json:"spawnRateMultiplier"`
	// ForgeFiendishDuration is how long a monster stays fiendish before
	// the rotation picks a new one.
	ForgeFiendishDuration time.Duration `json:"forgeFiendishDuration"`
	// ScriptTimeout bounds a single script callback invocation.
	ScriptTimeout time.Duration `json:"scriptTimeout"`

	LogPath       string `json:"logPath"`
	LogMaxSizeMB  int    `json:"logMaxSizeMB"`
	LogMaxBackups int    `json:"logMaxBackups"`
}

// DefaultWorldConfig returns the config used when no file is given.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		MaxScriptNesting:      10,
		SpawnRateMultiplier:   100,
		ForgeFiendishDuration: time.Hour,
		ScriptTimeout:         200 * time.Millisecond,
		LogMaxSizeMB:          50,
		LogMaxBackups:         5,
	}
}

// LoadWorldConfig reads a JSON config file, filling unset fields with
// defaults.
func LoadWorldConfig(path string) (WorldConfig, error) {
	result := DefaultWorldConfig()
	f, err := os.Open(path)
	if err != nil {
		return result, ember.WithStack(err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return result, ember.WithStack(err)
	}
	if err := goccy.Unmarshal(b, &result); err != nil {
		return result, ember.WithStack(err)
	}
	if result.MaxScriptNesting <= 0 {
		result.MaxScriptNesting = 10
	}
	if result.SpawnRateMultiplier <= 0 {
		result.SpawnRateMultiplier = 100
	}
	return result, nil
}
