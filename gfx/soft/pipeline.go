// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/hellotriangle/model"
)

// RootSignatureFlags control what a root signature allows.
type RootSignatureFlags uint32

// Root signature flags
const (
	RootSignatureFlagNone                           RootSignatureFlags = 0
	RootSignatureFlagAllowInputAssemblerInputLayout RootSignatureFlags = 1
)

// RootSignature declares the resources a pipeline can bind.
type RootSignature struct {
	flags RootSignatureFlags
}

// CreateRootSignature creates an empty root signature.
func (d *Device) CreateRootSignature(flags RootSignatureFlags) *RootSignature {
	return &RootSignature{flags: flags}
}

// Format is a pixel or vertex element format.
type Format int

// Supported formats
const (
	FormatUnknown Format = iota
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatR8G8B8A8Unorm
)

// InputElement describes one vertex attribute.
type InputElement struct {
	SemanticName string
	Format       Format
	Offset       int
}

// CullMode selects which triangles are discarded.
type CullMode int

// Cull modes. Clockwise triangles face front.
const (
	CullBack CullMode = iota
	CullNone
	CullFront
)

// VertexShader transforms a vertex into clip space.
type VertexShader func(v model.Vertex) model.Vertex

// PixelShader computes a color from interpolated vertex data.
type PixelShader func(v model.Vertex) glm.Vec4

// PassThrough is the vertex shader of the triangle: positions are
// already in clip space.
func PassThrough(v model.Vertex) model.Vertex {
	return v
}

// InterpolatedColor outputs the interpolated vertex color.
func InterpolatedColor(v model.Vertex) glm.Vec4 {
	return v.Color
}

// PipelineStateDesc describes a graphics pipeline.
type PipelineStateDesc struct {
	RootSignature *RootSignature
	InputLayout   []InputElement
	VS            VertexShader
	PS            PixelShader
	CullMode      CullMode
	RTVFormat     Format
}

// PipelineState is a compiled graphics pipeline.
type PipelineState struct {
	rootSignature *RootSignature
	vs            VertexShader
	ps            PixelShader
	cull          CullMode
}

// CreateGraphicsPipelineState validates desc and creates the pipeline.
func (d *Device) CreateGraphicsPipelineState(desc PipelineStateDesc) (*PipelineState, error) {
	switch {
	case desc.RootSignature == nil:
		return nil, errors.New("pipeline without a root signature")
	case len(desc.InputLayout) > 0 && desc.RootSignature.flags&RootSignatureFlagAllowInputAssemblerInputLayout == 0:
		return nil, errors.New("root signature does not allow an input layout")
	case desc.VS == nil || desc.PS == nil:
		return nil, errors.New("pipeline needs a vertex and a pixel shader")
	case desc.RTVFormat != FormatR8G8B8A8Unorm:
		return nil, errors.Errorf("unsupported render target format %d", desc.RTVFormat)
	}
	if err := validateInputLayout(desc.InputLayout); err != nil {
		return nil, err
	}

	return &PipelineState{
		rootSignature: desc.RootSignature,
		vs:            desc.VS,
		ps:            desc.PS,
		cull:          desc.CullMode,
	}, nil
}

// TriangleInputLayout matches model.Vertex.
func TriangleInputLayout() []InputElement {
	return []InputElement{
		{SemanticName: "POSITION", Format: FormatR32G32B32Float, Offset: 0},
		{SemanticName: "COLOR", Format: FormatR32G32B32A32Float, Offset: 12},
	}
}

func validateInputLayout(layout []InputElement) error {
	expected := TriangleInputLayout()
	if len(layout) != len(expected) {
		return errors.Errorf("input layout has %d elements, vertices have %d", len(layout), len(expected))
	}
	for i := range layout {
		if layout[i] != expected[i] {
			return errors.Errorf("input element %d (%s) does not match the vertex layout", i, layout[i].SemanticName)
		}
	}
	return nil
}

// Viewport maps clip space onto the render target.
type Viewport struct {
	TopLeftX, TopLeftY float32
	Width, Height      float32
}

// VertexBuffer is an upload heap buffer of vertices.
type VertexBuffer struct {
	data []byte
}

// CreateVertexBuffer allocates size bytes of vertex memory.
func (d *Device) CreateVertexBuffer(size int) (*VertexBuffer, error) {
	if size <= 0 || size%model.VertexSize != 0 {
		return nil, errors.Wrapf(model.ErrVertexData, "vertex buffer of %d bytes", size)
	}
	return &VertexBuffer{data: make([]byte, size)}, nil
}

// Map returns the buffer memory for the CPU to write.
func (b *VertexBuffer) Map() []byte {
	return b.data
}

// Release drops the buffer memory.
func (b *VertexBuffer) Release() {
	b.data = nil
}

// View returns a view of the whole buffer.
func (b *VertexBuffer) View() VertexBufferView {
	return VertexBufferView{
		buffer: b,
		Stride: model.VertexSize,
		Size:   len(b.data),
	}
}

// VertexBufferView is what the input assembler reads.
type VertexBufferView struct {
	buffer *VertexBuffer
	Stride int
	Size   int
}

func (v *VertexBufferView) vertices(start, count int) ([]model.Vertex, error) {
	if v.buffer == nil || v.buffer.data == nil {
		return nil, errors.New("vertex buffer was released")
	}
	if v.Stride != model.VertexSize {
		return nil, errors.Errorf("vertex stride %d, expected %d", v.Stride, model.VertexSize)
	}
	from, to := start*v.Stride, (start+count)*v.Stride
	if to > v.Size || to > len(v.buffer.data) {
		return nil, errors.Errorf("draw of vertices %d to %d out of buffer bounds", start, start+count)
	}
	return model.Decode(v.buffer.data[from:to])
}
