package config

import (
	"flag"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/triox/internal/flagx"
)

var serverFlags = []string{
	"-a", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e",
	"-storage", "-root", "-redis", "-kafka", "-topic", "-mask", "-log",
}

// parseFlags overlays the server flags found in args onto config.
//
// Supported flags:
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-storage    "s3" or "fs"
//	-root       local storage root for "fs"
//	-redis      Redis address
//	-kafka      comma-separated Kafka brokers
//	-topic      Kafka topic for account.deleted events
//	-mask       report unknown accounts as invalid credentials
//	-log        log level
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "storage backend (s3|fs)")
	fs.StringVar(&config.StorageRoot, "root", config.StorageRoot, "local storage root")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	kafkaBrokers := fs.String("kafka", strings.Join(config.KafkaBrokers, ","), "kafka brokers, comma separated")
	fs.StringVar(&config.KafkaTopic, "topic", config.KafkaTopic, "kafka topic")
	fs.BoolVar(&config.MaskAccountNotFound, "mask", config.MaskAccountNotFound, "hide unknown accounts behind invalid credentials")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
		case "kafka":
			config.KafkaBrokers = splitList(*kafkaBrokers)
		}
	})
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
