package main

import (
	"flag"

	"github.com/far4599/video-downloader-api/internal/app"
	"github.com/far4599/video-downloader-api/internal/config"
	"github.com/far4599/video-downloader-api/internal/pkg/context"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	_ "go.uber.org/automaxprocs"
)

var flagConfigFile = flag.String("f", "", "path to configuration yaml file")

func main() {
	flag.Parse()

	ctx := context.NewSignalledContext()

	conf, err := config.NewConfig(ctx, *flagConfigFile)
	if err != nil {
		log.Logger.Fatalw("failed to load config", "error", err)
	}

	if err = log.Setup(conf.Log.Debug, conf.Log.JSON); err != nil {
		log.Logger.Fatalw("failed to set up logger", "error", err)
	}

	if err = app.NewApp(conf).Run(ctx); err != nil {
		log.Logger.Fatalw("app exited unexpectedly", "error", err)
	}
}
