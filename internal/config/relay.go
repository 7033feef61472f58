package config

import "time"

type RelayConfig struct {
	ServicePrivateKey string
	SignatureTTL      time.Duration
	GasLimit          uint64
	ReceiptTimeout    time.Duration
}

func loadRelay() RelayConfig {
	return RelayConfig{
		ServicePrivateKey: mustenv("SERVICE_WALLET_PK"),
		SignatureTTL:      durationEnvSeconds("RELAY_SIGNATURE_TTL", time.Hour),
		GasLimit:          u64env("RELAY_GAS_LIMIT", 500_000),
		ReceiptTimeout:    durationEnvSeconds("RELAY_RECEIPT_TIMEOUT", 90*time.Second),
	}
}
