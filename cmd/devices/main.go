// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/hellotriangle/core"
)

var debug = flag.Bool("vkdbg", false, "Load Vulkan validation layers")

func main() {
	flag.Parse()

	cfg := core.InstanceConfiguration{
		DebugMode:  *debug,
		Extensions: []string{},
		Layers:     []string{},
	}

	coreInstance, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, nil, cfg)
	if err != nil {
		log.WithField("error", err).Fatal("create instance")
	}
	defer coreInstance.Destroy()

	infos := coreInstance.PhysicalDevicesInfo()
	if idx, err := core.PreferHardware(infos, core.RequiredDeviceExtensions...); err == nil {
		log.WithField("device", infos[idx].Name).Info("would render with")
	} else {
		log.WithField("error", err).Warn("no device to render with")
	}

	bytes, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		log.WithField("error", err).Fatal("marshal")
	}
	fmt.Printf("%s\n", bytes)
}
