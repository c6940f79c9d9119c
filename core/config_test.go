package core

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/envy"
)

func lookup(env map[string]string) func(key, value string) string {
	return func(key, value string) string {
		if v, ok := env[key]; ok {
			return v
		}
		return value
	}
}

func TestLoadConfigurationDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := loadConfiguration(lookup(nil))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, DefaultConfiguration())
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(800))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(600))
	c.Assert(cfg.Renderer.SwapchainSize, qt.Equals, uint32(3))
	c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 60)
}

func TestLoadConfigurationFromEnvy(t *testing.T) {
	c := qt.New(t)
	envy.Temp(func() {
		envy.Set(EnvWidth, "640")
		envy.Set(EnvHeight, "480")
		envy.Set(EnvDraw, "false")

		cfg, err := LoadConfiguration()
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(640))
		c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(480))
		c.Assert(cfg.Renderer.DrawTriangle, qt.IsFalse)
	})
}

func TestLoadConfiguration(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(c *qt.C, cfg Configuration)
		err   string
	}{{
		name: "size and buffers",
		env:  map[string]string{EnvWidth: "1024", EnvHeight: "768", EnvBuffers: "2"},
		check: func(c *qt.C, cfg Configuration) {
			c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1024))
			c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(768))
			c.Assert(cfg.Renderer.SwapchainSize, qt.Equals, uint32(2))
		},
	}, {
		name: "flags",
		env: map[string]string{
			EnvFullscreen:  "true",
			EnvDraw:        "false",
			EnvConfirmExit: "0",
			EnvVulkanDebug: "1",
			EnvShaders:     "shaders.kar",
		},
		check: func(c *qt.C, cfg Configuration) {
			c.Assert(cfg.Window.Fullscreen, qt.IsTrue)
			c.Assert(cfg.Renderer.DrawTriangle, qt.IsFalse)
			c.Assert(cfg.Window.ConfirmExit, qt.IsFalse)
			c.Assert(cfg.Instance.DebugMode, qt.IsTrue)
			c.Assert(cfg.Renderer.ShaderDirectory, qt.Equals, "shaders.kar")
		},
	}, {
		name: "uncapped",
		env:  map[string]string{EnvFps: "0", EnvEventPollMs: "5"},
		check: func(c *qt.C, cfg Configuration) {
			c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 0)
			c.Assert(cfg.Time.EventPollDelay, qt.Equals, 5)
		},
	}, {
		name: "bad width",
		env:  map[string]string{EnvWidth: "wide"},
		err:  `invalid configuration: TRIANGLE_WIDTH: .*invalid syntax`,
	}, {
		name: "zero buffers",
		env:  map[string]string{EnvBuffers: "0"},
		err:  `invalid configuration: TRIANGLE_BUFFERS: 0 is less than 1`,
	}, {
		name: "zero poll delay",
		env:  map[string]string{EnvEventPollMs: "0"},
		err:  `invalid configuration: TRIANGLE_EVENT_POLL_MS: 0 is less than 1`,
	}, {
		name: "negative fps",
		env:  map[string]string{EnvFps: "-1"},
		err:  `invalid configuration: TRIANGLE_FPS: .*`,
	}, {
		name: "fps above the ticker resolution",
		env:  map[string]string{EnvFps: "2000000000"},
		err:  `invalid configuration: TRIANGLE_FPS: 2000000000 is more than 1000000000`,
	}, {
		name: "fps at the ticker resolution",
		env:  map[string]string{EnvFps: "1000000000"},
		check: func(c *qt.C, cfg Configuration) {
			c.Assert(cfg.Time.FramesPerSecond, qt.Equals, MaxFramesPerSecond)
		},
	}, {
		name: "bad bool",
		env:  map[string]string{EnvDraw: "sometimes"},
		err:  `invalid configuration: TRIANGLE_DRAW: .*invalid syntax`,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			cfg, err := loadConfiguration(lookup(test.env))
			if test.err != "" {
				c.Assert(err, qt.ErrorMatches, test.err)
				return
			}
			c.Assert(err, qt.IsNil)
			test.check(c, cfg)
		})
	}
}
