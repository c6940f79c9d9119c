// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command softtriangle renders the triangle headless on the software
// backend and writes the last presented frame as a PNG.
package main

import (
	"context"
	"flag"
	"image/png"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/hellotriangle/core"
	"github.com/devblok/hellotriangle/gfx/soft"
)

var (
	frames    = flag.Int("frames", 10, "Number of frames to render")
	output    = flag.String("o", "triangle.png", "PNG file the last frame is written to")
	latency   = flag.Duration("latency", 5*time.Millisecond, "Simulated GPU time of one frame")
	clearOnly = flag.Bool("clear-only", false, "Only clear the screen, don't draw the triangle")
)

var _ core.Renderer = (*soft.Renderer)(nil)

func main() {
	flag.Parse()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	configuration, err := core.LoadConfiguration()
	if err != nil {
		log.WithField("error", err).Fatal("invalid configuration")
	}

	renderer := soft.NewRenderer(soft.Config{
		Width:        int(configuration.Renderer.ScreenWidth),
		Height:       int(configuration.Renderer.ScreenHeight),
		Buffers:      int(configuration.Renderer.SwapchainSize),
		DrawTriangle: configuration.Renderer.DrawTriangle && !*clearOnly,
		Latency:      *latency,
	})
	if err := renderer.Initialise(); err != nil {
		log.WithField("error", err).Fatal("initialise")
	}
	defer renderer.Destroy()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	for i := 0; i < *frames && renderer.Running(); i++ {
		renderer.Update()
		if err := renderer.Render(ctx); err != nil {
			log.WithField("error", err).Error("render failed")
			break
		}
	}
	if err := renderer.Flush(ctx); err != nil {
		log.WithField("error", err).Fatal("flush")
	}
	log.WithFields(log.Fields{
		"frames":  renderer.Frames(),
		"elapsed": time.Since(start),
	}).Info("rendered")

	f, err := os.Create(*output)
	if err != nil {
		log.WithField("error", err).Fatal("create output")
	}
	defer f.Close()
	if err := png.Encode(f, renderer.Frame()); err != nil {
		log.WithField("error", err).Fatal("encode png")
	}
	log.WithField("file", *output).Info("frame written")
}
