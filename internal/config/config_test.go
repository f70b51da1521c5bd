package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/annel0/knapping/internal/knapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutPath(t *testing.T) {
	t.Setenv("KNAP_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Knapping.MistakeAllowance)
	assert.Equal(t, "advanced", cfg.Knapping.Mode)
	assert.Equal(t, "KNAPPING", cfg.EventBus.Stream)
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knapd.yaml")
	yamlData := `
knapping:
  mistake_allowance: 0
  perfect_knapping_bonus: -1
  fracture_cone_angle: 270
  fracture_spread_rate: 2
  fracture_decay: 0.9
  fracture_base_probability: 0.7
  mode: default
server:
  rest_port: 9100
storage:
  ledger_ttl_minutes: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	engine := cfg.Knapping.EngineConfig()
	assert.Equal(t, 1, engine.MistakeAllowance, "допуск не может быть меньше 1")
	assert.Equal(t, 0.0, engine.PerfectBonus)
	assert.Equal(t, 180, engine.Fracture.ConeAngle)
	assert.Equal(t, 1.0, engine.Fracture.SpreadRate)
	assert.Equal(t, 0.5, engine.Fracture.Decay)
	assert.Equal(t, 0.7, engine.Fracture.BaseProbability)

	mode, err := cfg.Knapping.EngineMode()
	require.NoError(t, err)
	assert.Equal(t, knapping.ModeDefault, mode)

	assert.Equal(t, 9100, cfg.Server.GetRESTPort())
	assert.Equal(t, 10*time.Minute, cfg.Storage.LedgerTTL())
	// Незаданные поля берутся из значений по умолчанию
	assert.Equal(t, "data", cfg.Storage.DataPath)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("knapping:\n  mode: chaotic\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRESTPortEnvFallback(t *testing.T) {
	t.Setenv("KNAP_REST_PORT", "9200")
	s := ServerConfig{}
	assert.Equal(t, 9200, s.GetRESTPort())

	t.Setenv("KNAP_REST_PORT", "oops")
	assert.Equal(t, 8090, s.GetRESTPort())
}

func TestParsePatterns(t *testing.T) {
	data := []byte(`
patterns:
  knife: |
    ................
    ......##........
legacy_patterns:
  arrowhead: "....##....,...####..."
`)
	store := knapping.NewPatternStore()
	n, err := ParsePatterns(data, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	knife, ok := store.Lookup("knife")
	require.True(t, ok)
	assert.True(t, knife.Protected(6, 1))
	assert.False(t, knife.Protected(6, 0))

	arrow, ok := store.Lookup("arrowhead")
	require.True(t, ok)
	assert.True(t, arrow.Protected(4+3, 3), "legacy-маска смещена к центру")
}

func TestParsePatternsDuplicateName(t *testing.T) {
	data := []byte("patterns:\n  axe: \"#\"\nlegacy_patterns:\n  axe: \"#\"\n")
	_, err := ParsePatterns(data, knapping.NewPatternStore())
	assert.Error(t, err)
}

func TestLoadPatternsShippedFile(t *testing.T) {
	store := knapping.NewPatternStore()
	n, err := LoadPatterns(filepath.Join("..", "..", "assets", "patterns.yaml"), store)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	for _, name := range store.Names() {
		p := store.Get(name)
		mask := p.Mask()
		assert.Greater(t, mask.Count(), 0, "шаблон %s должен что-то защищать", name)
	}
}
