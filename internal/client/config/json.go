package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/triox/internal/flagx"
	"github.com/dmitrijs2005/triox/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify the timeout either as a
// string like "10s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	AccessToken        string         `json:"access_token"`
	Timeout            timex.Duration `json:"timeout"`
}

// parseJson overlays cfg with the JSON file named by -c/-config in args.
// Keys missing from the file keep their current values.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	jc := JsonConfig{
		ServerEndpointAddr: cfg.ServerEndpointAddr,
		AccessToken:        cfg.AccessToken,
		Timeout:            timex.Duration{Duration: cfg.Timeout},
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.AccessToken = jc.AccessToken
	cfg.Timeout = jc.Timeout.Duration
	return nil
}
