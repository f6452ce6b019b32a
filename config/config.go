package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr string
	Env      string

	RedisAddr string
	RedisPass string

	KafkaBrokers    []string
	KafkaLedgerTopic string

	NotificationChannel string

	// PlatformFeePercent is taken off escrow releases before the seller is
	// credited, e.g. "2.5" means 2.5%.
	PlatformFeePercent decimal.Decimal

	// RenewalCron drives the subscription renewal sweep.
	RenewalCron string

	Pricing PricingTable
}

func Load() Config {
	feePct, err := decimal.NewFromString(getEnv("PLATFORM_FEE_PERCENT", "2.5"))
	if err != nil {
		feePct = decimal.NewFromFloat(2.5)
	}

	return Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8030"),
		Env:                 getEnv("APP_ENV", "development"),
		RedisAddr:           getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:           getEnv("REDIS_PASS", ""),
		KafkaBrokers:        getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
		KafkaLedgerTopic:    getEnv("KAFKA_LEDGER_TOPIC", "ledger.transactions"),
		NotificationChannel: getEnv("NOTIFICATION_CHANNEL", "marketplace_notifications"),
		PlatformFeePercent:  feePct,
		RenewalCron:         getEnv("RENEWAL_CRON", "0 3 * * *"), // daily at 03:00
		Pricing:             DefaultPricingTable(),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
