package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
app:
  name: gridbot
  database_path: data/gridbot.db
exchange:
  name: fake
grid:
  market: KRW-USDT
  min_price: "1400"
  max_price: "1500"
  grid_interval: "20"
  amount_per_grid: "5"
  profit_interval: "5"
system:
  log_level: INFO
`

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gridbot", cfg.App.Name)
	assert.Equal(t, 5, cfg.Timing.MonitorTickSeconds)
	assert.Equal(t, 30, cfg.Timing.ReconciliationEveryTicks)
	assert.Equal(t, 8, cfg.Concurrency.ProbePoolSize)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("GRIDBOT_TEST_API_KEY", "secret-value")
	body := `
app:
  database_path: data/gridbot.db
exchange:
  name: binance
  api_key: ${GRIDBOT_TEST_API_KEY}
  secret_key: ${GRIDBOT_TEST_API_KEY}
grid:
  market: KRW-USDT
  min_price: "1400"
  max_price: "1500"
  grid_interval: "20"
  amount_per_grid: "5"
  profit_interval: "5"
system:
  log_level: INFO
`
	path := writeConfig(t, body)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", string(cfg.Exchange.APIKey))
}

func TestLoadMissingEnvVarKeepsLiteralPlaceholder(t *testing.T) {
	body := `
app:
  name: ${GRIDBOT_DEFINITELY_UNSET}
  database_path: data/gridbot.db
exchange:
  name: fake
grid:
  market: KRW-USDT
  min_price: "1400"
  max_price: "1500"
  grid_interval: "20"
  amount_per_grid: "5"
  profit_interval: "5"
system:
  log_level: INFO
  extra: ${GRIDBOT_DEFINITELY_UNSET}
`
	path := writeConfig(t, body)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.Exchange.Name)
	assert.Equal(t, "${GRIDBOT_DEFINITELY_UNSET}", cfg.App.Name)
}

func TestValidateRejectsMissingBinanceCredentials(t *testing.T) {
	body := `
app:
  database_path: data/gridbot.db
exchange:
  name: binance
grid:
  market: KRW-USDT
  min_price: "1400"
  max_price: "1500"
  grid_interval: "20"
  amount_per_grid: "5"
  profit_interval: "5"
system:
  log_level: INFO
`
	path := writeConfig(t, body)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsInvalidGrid(t *testing.T) {
	body := `
app:
  database_path: data/gridbot.db
exchange:
  name: fake
grid:
  market: KRW-USDT
  min_price: "1400"
  max_price: "1500"
  grid_interval: "20"
  amount_per_grid: "5"
system:
  log_level: INFO
`
	path := writeConfig(t, body)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestToGridConfigParsesDecimalFields(t *testing.T) {
	g := GridConfigFile{
		Market: "KRW-USDT", MinPrice: "1400", MaxPrice: "1500",
		GridInterval: "20", AmountPerGrid: "5", ProfitInterval: "5",
	}
	gc, err := g.ToGridConfig()
	require.NoError(t, err)
	assert.Equal(t, "KRW-USDT", gc.Market)
	assert.Equal(t, "1400", gc.MinPrice.String())
}

func TestToGridConfigRejectsMalformedDecimal(t *testing.T) {
	g := GridConfigFile{
		Market: "KRW-USDT", MinPrice: "not-a-number", MaxPrice: "1500",
		GridInterval: "20", AmountPerGrid: "5", ProfitInterval: "5",
	}
	_, err := g.ToGridConfig()
	assert.Error(t, err)
}
