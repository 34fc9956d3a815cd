// Command client deletes the account bound to an access token after asking
// for the account password.
//
//	client -a 127.0.0.1:50051 -token "$TRIOX_ACCESS_TOKEN"
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/triox/internal/client/cli"
	"github.com/dmitrijs2005/triox/internal/client/client"
	"github.com/dmitrijs2005/triox/internal/client/config"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	c, err := client.NewAccountClient(cfg.ServerEndpointAddr, cfg.AccessToken)
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = cli.NewApp(cfg, c).Run(context.Background())
	c.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}

}
