// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/hellotriangle/core"
	"github.com/devblok/hellotriangle/core/frame"
	"github.com/devblok/hellotriangle/gfx"
	"github.com/devblok/hellotriangle/model"
)

// Config configures the vulkan renderer.
type Config struct {
	Renderer core.RendererConfiguration
	Shaders  []core.ShaderFile
	Logger   log.FieldLogger
}

// NewRenderer selects the physical device for the instance's surface.
// Initialise has to be called before rendering.
func NewRenderer(instance core.Instance, cfg Config) (*Renderer, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.Renderer.SwapchainSize == 0 {
		cfg.Renderer.SwapchainSize = frame.DefaultBufferCount
	}
	if instance.Surface() == vk.NullSurface {
		return nil, errors.New("instance has no surface set")
	}

	physicalDevice, info, err := core.SelectPhysicalDevice(instance)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.WithField("renderer", "vulkan")
	logger.WithFields(log.Fields{
		"device": info.Name,
		"type":   info.Type,
		"queue":  info.QueueFamily,
	}).Info("physical device selected")

	return &Renderer{
		cfg:            cfg,
		log:            logger,
		instance:       instance,
		physicalDevice: physicalDevice,
		deviceInfo:     info,
	}, nil
}

// Renderer draws the triangle with vulkan.
type Renderer struct {
	cfg Config
	log log.FieldLogger

	instance       core.Instance
	physicalDevice vk.PhysicalDevice
	deviceInfo     core.PhysicalDeviceInfo

	device       vk.Device
	queue        *Queue
	memory       *MemoryAllocator
	swapchain    *SwapChain
	renderPass   vk.RenderPass
	framebuffers []vk.Framebuffer

	shaders        []core.Shader
	pipelineLayout vk.PipelineLayout
	pipelineCache  vk.PipelineCache
	pipeline       vk.Pipeline
	vertexBuffer   *Buffer
	viewport       vk.Viewport
	scissor        vk.Rect2D

	allocators []*Allocator
	fences     []*Fence
	list       *CommandList

	sync *frame.Sync
}

// Initialise implements core.Renderer.
func (r *Renderer) Initialise() error {
	if err := r.createDevice(); err != nil {
		return err
	}

	var deviceQueue vk.Queue
	vk.GetDeviceQueue(r.device, uint32(r.deviceInfo.QueueFamily), 0, &deviceQueue)
	r.memory = NewMemoryAllocator(r.device, r.physicalDevice)

	var err error
	if r.swapchain, err = NewSwapChain(r.device, r.physicalDevice, deviceQueue, r.instance.Surface(), SwapChainConfig{
		Width:         r.cfg.Renderer.ScreenWidth,
		Height:        r.cfg.Renderer.ScreenHeight,
		MinImageCount: r.cfg.Renderer.SwapchainSize,
	}); err != nil {
		return err
	}
	r.queue = NewQueue(deviceQueue, r.swapchain)
	r.createViewport()

	/* Render pass */
	if err := r.createRenderPass(); err != nil {
		return err
	}

	if err := r.createFramebuffers(); err != nil {
		return err
	}

	/* Pipeline */
	if r.cfg.Renderer.DrawTriangle {
		if err := r.createPipeline(); err != nil {
			return err
		}
	}

	/* Frame resources */
	slots := make([]frame.Slot, r.swapchain.BufferCount())
	for idx := range slots {
		allocator, err := NewAllocator(r.device, uint32(r.deviceInfo.QueueFamily))
		if err != nil {
			return err
		}
		r.allocators = append(r.allocators, allocator)

		fence, err := NewFence(r.device, r.log)
		if err != nil {
			return err
		}
		r.fences = append(r.fences, fence)
		slots[idx] = frame.Slot{Allocator: allocator, Fence: fence}
	}
	r.list = NewCommandList(r.swapchain)

	if r.sync, err = frame.NewSync(frame.Resources{
		Slots:     slots,
		List:      r.list,
		Queue:     r.queue,
		SwapChain: r.swapchain,
		Logger:    r.log,
	}); err != nil {
		return err
	}

	r.log.WithFields(log.Fields{
		"width":   r.swapchain.Extent().Width,
		"height":  r.swapchain.Extent().Height,
		"buffers": r.swapchain.BufferCount(),
		"draw":    r.cfg.Renderer.DrawTriangle,
	}).Info("vulkan renderer initialised")
	return nil
}

func (r *Renderer) createDevice() error {
	extensions := append(append([]string{}, core.RequiredDeviceExtensions...), r.cfg.Renderer.DeviceExtensions...)
	extensions = core.SafeStrings(extensions)

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(r.deviceInfo.QueueFamily),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(r.physicalDevice, &dci, nil, &device)); err != nil {
		return errors.Wrap(err, "vk.CreateDevice()")
	}
	r.device = device
	return nil
}

func (r *Renderer) createViewport() {
	extent := r.swapchain.Extent()
	r.viewport = vk.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	r.scissor = vk.Rect2D{
		Extent: extent,
	}
}

// createRenderPass keeps the image in the color attachment layout,
// the command list barriers handle the present transitions.
func (r *Renderer) createRenderPass() error {
	attachments := []vk.AttachmentDescription{{
		Format:         r.swapchain.Format(),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentRef)),
		PColorAttachments:    colorAttachmentRef,
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(r.device, &rpci, nil, &renderPass)); err != nil {
		return errors.Wrap(err, "vk.CreateRenderPass()")
	}
	r.renderPass = renderPass
	return nil
}

func (r *Renderer) createFramebuffers() error {
	extent := r.swapchain.Extent()
	for idx, view := range r.swapchain.Views() {
		attachments := []vk.ImageView{view}
		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      r.renderPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           extent.Width,
			Height:          extent.Height,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(r.device, &fci, nil, &framebuffer)); err != nil {
			return errors.Wrapf(err, "vk.CreateFramebuffer(%d)", idx)
		}
		r.framebuffers = append(r.framebuffers, framebuffer)
	}
	return nil
}

func (r *Renderer) loadShaders() ([]vk.PipelineShaderStageCreateInfo, error) {
	var stages []vk.PipelineShaderStageCreateInfo
	found := map[core.ShaderType]bool{}
	for _, file := range r.cfg.Shaders {
		var stage vk.ShaderStageFlagBits
		switch file.Type {
		case core.VertexShaderType:
			stage = vk.ShaderStageVertexBit
		case core.FragmentShaderType:
			stage = vk.ShaderStageFragmentBit
		default:
			continue
		}
		if found[file.Type] {
			r.log.WithField("shader", file.Name).Warn("more than one shader of a type, skipping")
			continue
		}

		shader, err := core.NewVulkanShader(file, r.device)
		if err != nil {
			return nil, err
		}
		r.shaders = append(r.shaders, shader)
		found[file.Type] = true

		shaderModule, ok := shader.ShaderModule().(vk.ShaderModule)
		if !ok {
			return nil, errors.New("shader module is not a vk.ShaderModule")
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: shaderModule,
			PName:  "main\x00",
		})
	}
	if !found[core.VertexShaderType] || !found[core.FragmentShaderType] {
		return nil, errors.Wrap(core.ErrNoShaders, "a vertex and a fragment shader are required")
	}
	return stages, nil
}

func (r *Renderer) createPipeline() error {
	stages, err := r.loadShaders()
	if err != nil {
		return err
	}

	/* Pipeline Layout */
	plci := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	var pipelineLayout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(r.device, &plci, nil, &pipelineLayout)); err != nil {
		return errors.Wrap(err, "vk.CreatePipelineLayout()")
	}
	r.pipelineLayout = pipelineLayout

	/* Pipeline cache */
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var pipelineCache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(r.device, &pcci, nil, &pipelineCache)); err != nil {
		return errors.Wrap(err, "vk.CreatePipelineCache()")
	}
	r.pipelineCache = pipelineCache

	bindings := model.VertexBindingDescriptions()
	attributes := model.VertexAttributeDescriptions()
	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     r.pipelineLayout,
		RenderPass: r.renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(r.device, r.pipelineCache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return errors.Wrap(err, "vk.CreateGraphicsPipelines()")
	}
	r.pipeline = pipelines[0]

	/* Vertex buffer */
	data := model.Bytes(model.Triangle())
	if r.vertexBuffer, err = NewBuffer(r.device, uint(len(data)), vk.BufferUsageVertexBufferBit, vk.SharingModeExclusive, r.memory); err != nil {
		return err
	}
	return r.vertexBuffer.Upload(data)
}

// Update implements core.Renderer. The triangle is static.
func (r *Renderer) Update() {}

// Render implements core.Renderer.
func (r *Renderer) Render(ctx context.Context) error {
	return r.sync.Render(ctx, r.record)
}

func (r *Renderer) record(_ frame.CommandList, target int) error {
	commandBuffer := r.list.Buffer()

	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(gfx.ClearColor[:])

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  r.renderPass,
		Framebuffer: r.framebuffers[target],
		RenderArea: vk.Rect2D{
			Extent: r.swapchain.Extent(),
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer, &rpbi, vk.SubpassContentsInline)
	if r.cfg.Renderer.DrawTriangle {
		vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, r.pipeline)
		vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{r.viewport})
		vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{r.scissor})
		vk.CmdBindVertexBuffers(commandBuffer, 0, 1, []vk.Buffer{r.vertexBuffer.Get()}, []vk.DeviceSize{0})
		vk.CmdDraw(commandBuffer, uint32(len(model.Triangle())), 1, 0, 0)
	}
	vk.CmdEndRenderPass(commandBuffer)
	return nil
}

// Running implements core.Renderer.
func (r *Renderer) Running() bool {
	return r.sync != nil && r.sync.Running()
}

// Stop ends the frame loop.
func (r *Renderer) Stop() {
	if r.sync != nil {
		r.sync.Stop()
	}
}

// Frames returns the number of submitted frames.
func (r *Renderer) Frames() uint64 {
	if r.sync == nil {
		return 0
	}
	return r.sync.Frames()
}

// Destroy implements core.Renderer. It waits for every frame
// before destroying anything the GPU may still use.
func (r *Renderer) Destroy() {
	if r.device == nil {
		return
	}
	if r.sync != nil {
		if err := r.sync.Cleanup(context.Background()); err != nil {
			r.log.WithField("error", err).Error("failed to drain frames")
		}
	}
	if err := vk.Error(vk.DeviceWaitIdle(r.device)); err != nil {
		r.log.WithField("error", err).Error("vk.DeviceWaitIdle()")
	}

	var items []gfx.Releasable
	if r.swapchain != nil {
		items = append(items, r.swapchain)
	}
	for _, fence := range r.fences {
		items = append(items, fence)
	}
	for _, allocator := range r.allocators {
		items = append(items, allocator)
	}
	if r.vertexBuffer != nil {
		items = append(items, r.vertexBuffer)
	}
	items = append(items, gfx.ReleaseFunc(func() {
		for _, shader := range r.shaders {
			shader.Destroy()
		}
		if r.pipeline != nil {
			vk.DestroyPipeline(r.device, r.pipeline, nil)
		}
		if r.pipelineCache != nil {
			vk.DestroyPipelineCache(r.device, r.pipelineCache, nil)
		}
		if r.pipelineLayout != nil {
			vk.DestroyPipelineLayout(r.device, r.pipelineLayout, nil)
		}
		for _, fb := range r.framebuffers {
			vk.DestroyFramebuffer(r.device, fb, nil)
		}
		if r.renderPass != nil {
			vk.DestroyRenderPass(r.device, r.renderPass, nil)
		}
	}))
	// released in reverse, the swap chain last
	gfx.ReleaseAll(items...)

	vk.DestroyDevice(r.device, nil)
	r.device = nil
	r.log.Info("vulkan renderer destroyed")
}
