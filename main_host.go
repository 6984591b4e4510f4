//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"titan/app"
	"titan/hal"
)

func main() {
	var cfg hal.HeadlessConfig
	appCfg := app.DefaultConfig()
	var serialPath string
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 1000, "SysTick rate in wall-clock ticks per second (0 = unpaced).")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N ticks (0 = run forever).")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Do not log LED transitions.")
	flag.StringVar(&appCfg.Board, "board", appCfg.Board, "Board profile of the first core.")
	flag.StringVar(&serialPath, "serial", "", "Write the UART trace stream to this file.")
	flag.BoolVar(&appCfg.TextTrace, "trace-text", false, "Log trace events as text.")
	flag.Parse()

	if serialPath != "" {
		f, err := os.Create(serialPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		cfg.Serial = f
	} else {
		cfg.Serial = io.Discard
		appCfg.WireTrace = false
	}

	newApp := func(h hal.HAL) (func() error, error) {
		return app.New(h, appCfg)
	}

	var err error
	if cfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err = hal.RunHeadless(ctx, newApp, cfg)
	} else {
		err = hal.RunWindow(newApp, cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
