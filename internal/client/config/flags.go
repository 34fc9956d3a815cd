package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/triox/internal/flagx"
)

var clientFlags = []string{"-a", "-token", "-timeout", "-yes"}

// parseFlags populates selected Config fields from command-line flags.
// Only the flags listed in clientFlags are considered.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "access token")
	timeout := fs.Int("timeout", int(cfg.Timeout.Seconds()), "request timeout (in seconds)")
	fs.BoolVar(&cfg.AssumeYes, "yes", cfg.AssumeYes, "do not ask for confirmation")

	if err := fs.Parse(flagx.FilterArgs(args, clientFlags)); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "timeout" {
			cfg.Timeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
