package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadLedgerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadLedgerConfig()

		assert.True(t, cfg.MaxTransferPerTx.Equal(decimal.NewFromInt(2000)))
		assert.True(t, cfg.MaxTransferDaily.Equal(decimal.NewFromInt(10000)))
		assert.Equal(t, time.Minute, cfg.ReversalWindow)
		assert.Equal(t, 8*time.Second, cfg.ConversionTimeout)
		assert.Equal(t, "http://localhost:3009/crediExpress/v1", cfg.ConversionServiceURL)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LEDGER_MAX_TRANSFER_PER_TX", "2500.50")
		t.Setenv("LEDGER_REVERSAL_WINDOW", "90s")
		t.Setenv("CONVERSION_TIMEOUT", "3000")
		t.Setenv("CONVERSION_SERVICE_URL", "http://conversion:3009/v1/")

		cfg := LoadLedgerConfig()

		assert.Equal(t, "2500.5", cfg.MaxTransferPerTx.String())
		assert.Equal(t, 90*time.Second, cfg.ReversalWindow)
		assert.Equal(t, 3*time.Second, cfg.ConversionTimeout)
		assert.Equal(t, "http://conversion:3009/v1", cfg.ConversionServiceURL)
	})

	t.Run("invalid values fall back to defaults", func(t *testing.T) {
		t.Setenv("LEDGER_MAX_TRANSFER_DAILY", "-5")
		t.Setenv("LEDGER_QR_TTL", "soon")

		cfg := LoadLedgerConfig()

		assert.True(t, cfg.MaxTransferDaily.Equal(decimal.NewFromInt(10000)))
		assert.Equal(t, 5*time.Minute, cfg.QRCodeTTL)
	})
}
