package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/flagx"
	"github.com/dmitrijs2005/regmirror/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON configuration file. Durations
// use timex.Duration so both "30s" and integer nanoseconds are accepted.
// Zero values leave the corresponding Config field untouched.
type JsonConfig struct {
	HTTPAddr           string         `json:"http_addr"`
	DatabaseDSN        string         `json:"database_dsn"`
	UpstreamURL        string         `json:"upstream_url"`
	UpstreamPageSize   int            `json:"upstream_page_size"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
	SyncSource         string         `json:"sync_source"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	LeaseTTL           timex.Duration `json:"lease_ttl"`
	RedisAddr          string         `json:"redis_addr"`
	RedisPassword      string         `json:"redis_password"`
	RedisDB            int            `json:"redis_db"`
	AdminSecret        string         `json:"admin_secret"`
	AdminTokenValidity timex.Duration `json:"admin_token_validity"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3Prefix           string         `json:"s3_prefix"`
	LogLevel           string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Without the flag nothing happens. An unreadable
// or invalid file panics: the process cannot start with a broken config.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.UpstreamURL, c.UpstreamURL)
	if c.UpstreamPageSize > 0 {
		config.UpstreamPageSize = c.UpstreamPageSize
	}
	setDuration(&config.RequestTimeout, c.RequestTimeout)
	setString(&config.SyncSource, c.SyncSource)
	setDuration(&config.SyncInterval, c.SyncInterval)
	setDuration(&config.LeaseTTL, c.LeaseTTL)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB > 0 {
		config.RedisDB = c.RedisDB
	}
	setString(&config.AdminSecret, c.AdminSecret)
	setDuration(&config.AdminTokenValidity, c.AdminTokenValidity)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3Prefix, c.S3Prefix)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
