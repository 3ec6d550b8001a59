package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "REGMIRROR_"

// parseEnv overlays config with REGMIRROR_* environment variables. When
// -env-file is given, that dotenv file is loaded first; variables already set
// in the process environment take precedence over the file. A missing or
// malformed env file panics, as does an unparsable numeric or duration value.
func parseEnv(config *Config) {
	if envFile := flagx.EnvFileFlag(); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	}

	envString(&config.HTTPAddr, "HTTP_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.UpstreamURL, "UPSTREAM_URL")
	envInt(&config.UpstreamPageSize, "UPSTREAM_PAGE_SIZE")
	envDuration(&config.RequestTimeout, "REQUEST_TIMEOUT")
	envString(&config.SyncSource, "SYNC_SOURCE")
	envDuration(&config.SyncInterval, "SYNC_INTERVAL")
	envDuration(&config.LeaseTTL, "LEASE_TTL")
	envString(&config.RedisAddr, "REDIS_ADDR")
	envString(&config.RedisPassword, "REDIS_PASSWORD")
	envInt(&config.RedisDB, "REDIS_DB")
	envString(&config.AdminSecret, "ADMIN_SECRET")
	envDuration(&config.AdminTokenValidity, "ADMIN_TOKEN_VALIDITY")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envString(&config.S3Prefix, "S3_PREFIX")
	envString(&config.LogLevel, "LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
