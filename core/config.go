package core

import (
	"math"
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/pkg/errors"
)

// Environment keys read by LoadConfiguration
const (
	EnvWidth         = "TRIANGLE_WIDTH"
	EnvHeight        = "TRIANGLE_HEIGHT"
	EnvFullscreen    = "TRIANGLE_FULLSCREEN"
	EnvFps           = "TRIANGLE_FPS"
	EnvEventPollMs   = "TRIANGLE_EVENT_POLL_MS"
	EnvBuffers       = "TRIANGLE_BUFFERS"
	EnvDraw          = "TRIANGLE_DRAW"
	EnvConfirmExit   = "TRIANGLE_CONFIRM_EXIT"
	EnvShaders       = "TRIANGLE_SHADERS"
	EnvVulkanDebug   = "TRIANGLE_VK_DEBUG"
	defaultShaderDir = "./shaders"
)

// MaxFramesPerSecond is the highest frame cap a ticker can represent.
const MaxFramesPerSecond = int(time.Second)

// Configuration defines a global configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Window   WindowConfiguration
	Instance InstanceConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the window event polling interval in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// DrawTriangle records the triangle draw after the clear
	DrawTriangle bool

	// ShaderDirectory is a directory of compiled shaders or a kar archive
	ShaderDirectory string
}

// WindowConfiguration is used to configure the window
type WindowConfiguration struct {
	Title       string
	Fullscreen  bool
	ConfirmExit bool
}

// InstanceConfiguration is used to create the graphics instance
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// DefaultConfiguration returns the configuration used when
// nothing is set in the environment.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  10,
		},
		Renderer: RendererConfiguration{
			SwapchainSize:   3,
			ScreenWidth:     800,
			ScreenHeight:    600,
			DrawTriangle:    true,
			ShaderDirectory: defaultShaderDir,
		},
		Window: WindowConfiguration{
			Title:       "Hello Triangle",
			ConfirmExit: true,
		},
	}
}

// LoadConfiguration reads the configuration from the environment
// (and the .env file envy loads), falling back to defaults.
func LoadConfiguration() (Configuration, error) {
	return loadConfiguration(envy.Get)
}

func loadConfiguration(get func(key, value string) string) (Configuration, error) {
	cfg := DefaultConfiguration()
	var err error

	readUint := func(key string, dst *uint32, min, max uint64) {
		if err != nil {
			return
		}
		raw := get(key, strconv.FormatUint(uint64(*dst), 10))
		v, perr := strconv.ParseUint(raw, 10, 32)
		if perr != nil {
			err = errors.Wrapf(perr, "%s", key)
			return
		}
		if v < min {
			err = errors.Errorf("%s: %d is less than %d", key, v, min)
			return
		}
		if v > max {
			err = errors.Errorf("%s: %d is more than %d", key, v, max)
			return
		}
		*dst = uint32(v)
	}
	readInt := func(key string, dst *int, min int, max uint64) {
		v := uint32(*dst)
		readUint(key, &v, uint64(min), max)
		*dst = int(v)
	}
	readBool := func(key string, dst *bool) {
		if err != nil {
			return
		}
		v, perr := strconv.ParseBool(get(key, strconv.FormatBool(*dst)))
		if perr != nil {
			err = errors.Wrapf(perr, "%s", key)
			return
		}
		*dst = v
	}

	readUint(EnvWidth, &cfg.Renderer.ScreenWidth, 1, math.MaxUint32)
	readUint(EnvHeight, &cfg.Renderer.ScreenHeight, 1, math.MaxUint32)
	readUint(EnvBuffers, &cfg.Renderer.SwapchainSize, 1, math.MaxUint32)
	readInt(EnvFps, &cfg.Time.FramesPerSecond, 0, uint64(MaxFramesPerSecond))
	readInt(EnvEventPollMs, &cfg.Time.EventPollDelay, 1, math.MaxUint32)
	readBool(EnvFullscreen, &cfg.Window.Fullscreen)
	readBool(EnvDraw, &cfg.Renderer.DrawTriangle)
	readBool(EnvConfirmExit, &cfg.Window.ConfirmExit)
	readBool(EnvVulkanDebug, &cfg.Instance.DebugMode)
	if err != nil {
		return Configuration{}, errors.Wrap(err, "invalid configuration")
	}

	cfg.Renderer.ShaderDirectory = get(EnvShaders, cfg.Renderer.ShaderDirectory)
	return cfg, nil
}
