package core

import (
	"github.com/pkg/errors"
)

// ErrNoSuitableDevice is returned when no hardware device can render
// to the window surface.
var ErrNoSuitableDevice = errors.New("no suitable hardware device")

// Physical device types
const (
	DeviceTypeOther      = "other"
	DeviceTypeIntegrated = "integrated"
	DeviceTypeDiscrete   = "discrete"
	DeviceTypeVirtual    = "virtual"
	DeviceTypeCPU        = "cpu"
)

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Type          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint

	// QueueFamily is the first queue family that supports graphics and,
	// when a surface is set, presenting to it. -1 if there is none.
	QueueFamily int
}

// Software reports whether the device is a CPU implementation.
func (pdi PhysicalDeviceInfo) Software() bool {
	return pdi.Type == DeviceTypeCPU
}

// HasExtension reports whether the device supports the named extension.
func (pdi PhysicalDeviceInfo) HasExtension(name string) bool {
	for _, ext := range pdi.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

// PreferHardware picks the first device that is not a software
// implementation, has a graphics queue that can present and supports
// every required extension.
func PreferHardware(devices []PhysicalDeviceInfo, required ...string) (int, error) {
	for idx, dev := range devices {
		if dev.Invalid || dev.Software() || dev.QueueFamily < 0 {
			continue
		}
		supported := true
		for _, ext := range required {
			if !dev.HasExtension(ext) {
				supported = false
				break
			}
		}
		if supported {
			return idx, nil
		}
	}
	return -1, errors.Wrapf(ErrNoSuitableDevice, "%d devices checked", len(devices))
}
