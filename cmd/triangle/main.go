// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/hellotriangle/core"
	"github.com/devblok/hellotriangle/gfx/vkr"
)

func init() {
	runtime.LockOSThread()
}

// Essential globals
var (
	vkInstance *core.VulkanInstance
	vkRenderer *vkr.Renderer
	sdlWindow  *sdl.Window

	frameCounter int64
)

// Flags
var (
	envFile      = flag.String("env", "", "Load configuration from a dotenv file")
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	shaderPath   = flag.String("shaders", "", "Directory or kar archive of compiled shaders")
	clearOnly    = flag.Bool("clear-only", false, "Only clear the screen, don't draw the triangle")
	verbose      = flag.Bool("v", false, "Debug logging")
)

func newWindow(cfg core.Configuration) *sdl.Window {
	flags := uint32(sdl.WINDOW_VULKAN)
	if cfg.Window.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN_DESKTOP
	}
	window, err := sdl.CreateWindow(cfg.Window.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		flags)
	if err != nil {
		panic(err)
	}
	return window
}

// confirmExit asks before closing, like the window's close button would.
func confirmExit(window *sdl.Window) bool {
	buttonID, err := sdl.ShowMessageBox(&sdl.MessageBoxData{
		Flags:      sdl.MESSAGEBOX_WARNING,
		Window:     window,
		Title:      "Exit",
		Message:    "Are you sure you want to exit?",
		NumButtons: 2,
		Buttons: []sdl.MessageBoxButtonData{
			{Flags: sdl.MESSAGEBOX_BUTTON_RETURNKEY_DEFAULT, ButtonID: 1, Text: "Yes"},
			{Flags: sdl.MESSAGEBOX_BUTTON_ESCAPEKEY_DEFAULT, ButtonID: 0, Text: "No"},
		},
	})
	if err != nil {
		log.WithField("error", err).Warn("message box failed, exiting")
		return true
	}
	return buttonID == 1
}

func loadConfiguration() core.Configuration {
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			panic(err)
		}
		envy.Reload()
	}

	configuration, err := core.LoadConfiguration()
	if err != nil {
		panic(err)
	}
	if *debug {
		configuration.Instance.DebugMode = true
	}
	if *clearOnly {
		configuration.Renderer.DrawTriangle = false
	}
	if *shaderPath != "" {
		configuration.Renderer.ShaderDirectory = *shaderPath
	}
	return configuration
}

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	configuration := loadConfiguration()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	var shaders []core.ShaderFile
	if configuration.Renderer.DrawTriangle {
		var err error
		if shaders, err = loadShaders(configuration.Renderer.ShaderDirectory); err != nil {
			panic(err)
		}
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow = newWindow(configuration)
	defer sdlWindow.Destroy()

	{
		cfg := core.InstanceConfiguration{
			DebugMode:  configuration.Instance.DebugMode,
			Extensions: append(sdlWindow.VulkanGetInstanceExtensions(), configuration.Instance.Extensions...),
			Layers:     configuration.Instance.Layers,
		}

		vi, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg)
		if err != nil {
			panic(err)
		}
		vkInstance = vi
		defer vkInstance.Destroy()
	}

	srf, err := sdlWindow.VulkanCreateSurface(vkInstance.Inner())
	if err != nil {
		panic(err)
	}
	vkInstance.SetSurface(srf)

	vkRenderer, err = vkr.NewRenderer(vkInstance, vkr.Config{
		Renderer: configuration.Renderer,
		Shaders:  shaders,
		Logger:   log.StandardLogger(),
	})
	if err != nil {
		panic(err)
	}

	if err := vkRenderer.Initialise(); err != nil {
		panic(err)
	}
	defer vkRenderer.Destroy()

	run(configuration, vkRenderer)

	if configuration.Window.Fullscreen {
		if err := sdlWindow.SetFullscreen(0); err != nil {
			log.WithField("error", err).Warn("failed to leave fullscreen")
		}
	}

	log.WithField("frames", vkRenderer.Frames()).Info("exiting")

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			panic(err)
		}
	}
}

// run renders on its own goroutine and polls events on the main thread
// until the window closes or rendering stops.
func run(configuration core.Configuration, renderer core.Renderer) {
	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	programSync := sync.WaitGroup{}

	/* Frame counter loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.WithFields(log.Fields{
					"fps":       atomic.SwapInt64(&frameCounter, 0),
					"cgo_calls": runtime.NumCgoCall(),
				}).Debug("frame rate")
			}
		}
	}(ctx, &programSync)

	/* Renderer loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		defer cancel()
		for renderer.Running() {
			select {
			case <-ctx.Done():
				return
			case <-timeService.FpsTicker().C:
				renderer.Update()
				if err := renderer.Render(ctx); err != nil {
					if ctx.Err() == nil {
						log.WithField("error", err).Error("render failed")
					}
					return
				}
				atomic.AddInt64(&frameCounter, 1)
			}
		}
	}(ctx, &programSync)

	/* Event loop */
EventLoop:
	for {
		select {
		case <-ctx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Type == sdl.KEYDOWN && et.Keysym.Sym == sdl.K_ESCAPE {
						if !configuration.Window.ConfirmExit || confirmExit(sdlWindow) {
							cancel()
							continue EventLoop
						}
					}
				case *sdl.QuitEvent:
					cancel()
					continue EventLoop
				}
			}
		}
	}

	programSync.Wait()
}
