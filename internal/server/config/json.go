package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/triox/internal/flagx"
	"github.com/dmitrijs2005/triox/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// "15m"-style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	StorageBackend              string         `json:"storage_backend"`
	StorageRoot                 string         `json:"storage_root"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	RedisAddr                   string         `json:"redis_addr"`
	KafkaBrokers                []string       `json:"kafka_brokers"`
	KafkaTopic                  string         `json:"kafka_topic"`
	MaskAccountNotFound         bool           `json:"mask_account_not_found"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// missing from the file keep their current values. No flag means no file.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}
	fromJson(config, c)
	return nil
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:            c.EndpointAddrGRPC,
		DatabaseDSN:                 c.DatabaseDSN,
		SecretKey:                   c.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: c.AccessTokenValidityDuration},
		StorageBackend:              c.StorageBackend,
		StorageRoot:                 c.StorageRoot,
		S3RootUser:                  c.S3RootUser,
		S3RootPassword:              c.S3RootPassword,
		S3Bucket:                    c.S3Bucket,
		S3Region:                    c.S3Region,
		S3BaseEndpoint:              c.S3BaseEndpoint,
		RedisAddr:                   c.RedisAddr,
		KafkaBrokers:                c.KafkaBrokers,
		KafkaTopic:                  c.KafkaTopic,
		MaskAccountNotFound:         c.MaskAccountNotFound,
		LogLevel:                    c.LogLevel,
	}
}

func fromJson(config *Config, c *JsonConfig) {
	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	config.StorageBackend = c.StorageBackend
	config.StorageRoot = c.StorageRoot
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.RedisAddr = c.RedisAddr
	config.KafkaBrokers = c.KafkaBrokers
	config.KafkaTopic = c.KafkaTopic
	config.MaskAccountNotFound = c.MaskAccountNotFound
	config.LogLevel = c.LogLevel
}
