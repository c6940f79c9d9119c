// Package core holds what every renderer shares: the graphics instance,
// physical device selection, configuration, timing and shader loading.
package core

import (
	"context"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Instance describes a Vulkan instance and supporting methods.
// Once created it is ready to use.
type Instance interface {
	// PhysicalDevicesInfo returns a struct for each Physical Device
	// along with info about those devices
	PhysicalDevicesInfo() []PhysicalDeviceInfo

	// AvailableDevices returns handles of Physical Devices
	// from the Vulkan API
	AvailableDevices() []vk.PhysicalDevice

	// SetSurface sets the window surface for rendering
	SetSurface(unsafe.Pointer)

	// Surface returns the window surface, if it's not set
	// it should return a valid but empty surface
	Surface() vk.Surface

	// Extensions returns enabled instance extensions
	Extensions() []string

	// Inner returns the inner handle of the underlying API
	Inner() interface{}

	// Destroy destroys internal members
	Destroy()
}

// Renderer describes the rendering machinery.
// It's created only with internal values set,
// it needs to be initialised with Initialise() before use.
type Renderer interface {
	// Initialise sets up the configured rendering pipeline
	Initialise() error

	// Update runs per frame application logic
	Update()

	// Render records, submits and presents one frame.
	// Blocks while the frame's buffer is still in use by the GPU
	Render(ctx context.Context) error

	// Running is false once rendering failed or was stopped
	Running() bool

	// Destroy waits for the GPU and destroys internal members
	Destroy()
}

// Shader is a compiled shader module
type Shader interface {
	Name() string
	Type() ShaderType

	// ShaderModule returns the API specific module handle
	ShaderModule() interface{}

	Destroy()
}

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

func (st ShaderType) String() string {
	switch st {
	case VertexShaderType:
		return "vert"
	case FragmentShaderType:
		return "frag"
	default:
		return "unknown"
	}
}
