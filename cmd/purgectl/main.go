// Command purgectl re-runs owned-data purges for deleted accounts whose
// purge failed or never finished. It reads the server configuration.
//
//	purgectl -c server.json -limit 500
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/triox/internal/flagx"
	"github.com/dmitrijs2005/triox/internal/server"
	"github.com/dmitrijs2005/triox/internal/server/config"
)

func parseLimit(args []string) (int, error) {
	fs := flag.NewFlagSet("purgectl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 100, "maximum number of deletions to retry")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-limit"})); err != nil {
		return 0, err
	}
	return *limit, nil
}

func run() int {

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limit, err := parseLimit(os.Args[1:])
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer app.Close()

	res, err := app.Accounts().RetryFailedPurges(ctx, limit)
	if err != nil {
		app.Logger().Error(ctx, "retry failed purges", "error", err)
		return 1
	}

	app.Logger().Info(ctx, "purge retry finished",
		"attempted", res.Attempted, "completed", res.Completed, "failed", res.Failed)
	if res.Failed > 0 {
		return 2
	}
	return 0
}

func main() {
	os.Exit(run())
}
