package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/regmirror/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-d string    PostgreSQL DSN
//	-u string    upstream registry base URL
//	-n int       upstream page size
//	-t duration  upstream request timeout (e.g., "30s")
//	-i duration  sync interval, 0 disables the scheduler
//	-r string    Redis address for the sync lease
//	-s string    admin JWT HMAC secret
//	-b string    S3 bucket for the page archive
//	-g string    S3 region
//	-e string    S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string    log level
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so -c/-config and -env-file do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-u", "-n", "-t", "-i", "-r", "-s", "-b", "-g", "-e", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.UpstreamURL, "u", config.UpstreamURL, "upstream registry base URL")
	fs.IntVar(&config.UpstreamPageSize, "n", config.UpstreamPageSize, "upstream page size")
	fs.DurationVar(&config.RequestTimeout, "t", config.RequestTimeout, "upstream request timeout")
	fs.DurationVar(&config.SyncInterval, "i", config.SyncInterval, "sync interval (0 disables scheduler)")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address for the sync lease")
	fs.StringVar(&config.AdminSecret, "s", config.AdminSecret, "admin token secret")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
