/*
Lumo runs the testbed passes: a particle simulation in a compute shader,
splatted as points and color graded on a full screen quad.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumo/engine"
	"github.com/spaghettifunk/lumo/engine/config"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/testbed"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file, defaults are used when empty")
	headless := flag.Bool("headless", false, "render with the headless backend, without a window or GPU")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 keeps the configured value")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if *headless {
		cfg.Backend = "headless"
	}
	if *frames > 0 {
		cfg.MaxFrames = *frames
	}
	if cfg.Backend == "headless" && cfg.MaxFrames == 0 {
		// Nothing would ever close it.
		cfg.MaxFrames = 600
	}

	tb := testbed.NewTestGame(cfg)
	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
