package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerConfig struct {
	MaxTransferPerTx     decimal.Decimal
	MaxTransferDaily     decimal.Decimal
	ReversalWindow       time.Duration
	ConversionServiceURL string
	ConversionTimeout    time.Duration
	QRCodeTTL            time.Duration
	BankBIC              string
	EventsExchange       string
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		MaxTransferPerTx:     getEnvAsDecimal("LEDGER_MAX_TRANSFER_PER_TX", decimal.NewFromInt(2000)),
		MaxTransferDaily:     getEnvAsDecimal("LEDGER_MAX_TRANSFER_DAILY", decimal.NewFromInt(10000)),
		ReversalWindow:       getEnvAsDuration("LEDGER_REVERSAL_WINDOW", 1*time.Minute),
		ConversionServiceURL: strings.TrimRight(getEnv("CONVERSION_SERVICE_URL", "http://localhost:3009/crediExpress/v1"), "/"),
		ConversionTimeout:    getEnvAsDuration("CONVERSION_TIMEOUT", 8*time.Second),
		QRCodeTTL:            getEnvAsDuration("LEDGER_QR_TTL", 5*time.Minute),
		BankBIC:              getEnv("LEDGER_BANK_BIC", "CREDGTGC"),
		EventsExchange:       getEnv("LEDGER_EVENTS_EXCHANGE", "corebanking.events"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil && duration > 0 {
			return duration
		}
		// bare numbers are read as milliseconds, e.g. CONVERSION_TIMEOUT=8000
		if ms := getEnvAsInt(key, 0); ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil && d.IsPositive() {
			return d
		}
	}
	return defaultVal
}
