package core

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
)

const swapchainExt = "VK_KHR_swapchain"

func TestPreferHardware(t *testing.T) {
	software := PhysicalDeviceInfo{Name: "llvmpipe", Type: DeviceTypeCPU, QueueFamily: 0, Extensions: []string{swapchainExt}}
	discrete := PhysicalDeviceInfo{Name: "discrete", Type: DeviceTypeDiscrete, QueueFamily: 0, Extensions: []string{swapchainExt}}
	integrated := PhysicalDeviceInfo{Name: "integrated", Type: DeviceTypeIntegrated, QueueFamily: 1, Extensions: []string{"VK_KHR_maintenance1", swapchainExt}}
	noPresent := PhysicalDeviceInfo{Name: "headless", Type: DeviceTypeDiscrete, QueueFamily: -1, Extensions: []string{swapchainExt}}
	noSwapchain := PhysicalDeviceInfo{Name: "compute", Type: DeviceTypeDiscrete, QueueFamily: 0}
	invalid := discrete
	invalid.Invalid = true

	tests := []struct {
		name    string
		devices []PhysicalDeviceInfo
		want    int
	}{
		{name: "skips software", devices: []PhysicalDeviceInfo{software, discrete}, want: 1},
		{name: "first hardware wins", devices: []PhysicalDeviceInfo{integrated, discrete}, want: 0},
		{name: "needs present", devices: []PhysicalDeviceInfo{noPresent, integrated}, want: 1},
		{name: "needs swapchain", devices: []PhysicalDeviceInfo{noSwapchain, discrete}, want: 1},
		{name: "skips invalid", devices: []PhysicalDeviceInfo{invalid, integrated}, want: 1},
		{name: "only software", devices: []PhysicalDeviceInfo{software}, want: -1},
		{name: "none", want: -1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			idx, err := PreferHardware(test.devices, swapchainExt)
			c.Assert(idx, qt.Equals, test.want)
			if test.want < 0 {
				c.Assert(errors.Cause(err), qt.Equals, ErrNoSuitableDevice)
			} else {
				c.Assert(err, qt.IsNil)
			}
		})
	}
}
