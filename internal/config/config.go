package config

import "github.com/spf13/viper"

// Config holds typed configuration for the taskman service.
type Config struct {
	LogLevel      string
	HTTPPort      string
	MetricsAddr   string
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  string
	JWTSecret     string
	SweepSchedule string
	SignupGrant   int
	OTelEndpoint  string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:      v.GetString("log_level"),
		HTTPPort:      v.GetString("http_port"),
		MetricsAddr:   v.GetString("metrics_addr"),
		PostgresDSN:   v.GetString("postgres_dsn"),
		RedisAddr:     v.GetString("redis_addr"),
		KafkaBrokers:  v.GetString("kafka_brokers"),
		JWTSecret:     v.GetString("jwt_secret"),
		SweepSchedule: v.GetString("sweep_schedule"),
		SignupGrant:   v.GetInt("signup_grant"),
		OTelEndpoint:  v.GetString("otel_endpoint"),
	}
}
