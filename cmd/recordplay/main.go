// Command recordplay runs the capture/replay engine as a standalone HTTP
// host, the role a Janus core plays for the plugin this was distilled
// from: load configuration, build the engine, and serve its request
// surface until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/kestrelmedia/recordplay/internal/config"
	"github.com/kestrelmedia/recordplay/internal/httpapi"
	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/plugin"
	"github.com/kestrelmedia/recordplay/internal/rtcsession"
)

func main() {
	confPath := flag.String("config", "recordplay.yml", "path to the YAML configuration file")
	addr := flag.String("addr", ":8188", "address to serve the HTTP request surface on")
	watch := flag.Bool("watch", true, "watch the capture directory for externally added/removed .nfo files")
	flag.Parse()

	if err := run(*confPath, *addr, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %s\n", err)
		os.Exit(1)
	}
}

func run(confPath, addr string, watch bool) error {
	raw, err := os.ReadFile(confPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	conf, err := config.Load(raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	log, err := logger.New(logger.Info, []logger.Destination{logger.DestinationStdout}, "", "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Close()

	api, err := rtcsession.NewAPI(rtcsession.APIConfig{})
	if err != nil {
		return fmt.Errorf("create webrtc api: %w", err)
	}

	eng := plugin.New(conf, api, nil, log)
	if err := eng.Start(watch); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Close()

	server := &httpapi.Server{Address: addr, Engine: eng, Logger: log}
	if err := server.Initialize(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	defer server.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	log.Log(logger.Info, "shutting down gracefully")
	return nil
}
