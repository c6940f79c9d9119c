// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the vertex data of the triangle and its layout.
package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// VertexSize is the packed size of a Vertex in bytes.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// ErrVertexData is returned when a byte buffer is not a whole number of vertices.
var ErrVertexData = errors.New("vertex data is not a multiple of the vertex size")

// Vertex is a model vertex
type Vertex struct {
	Pos   glm.Vec3
	Color glm.Vec4
}

// Triangle returns the vertices of the static triangle,
// in clip space, clockwise.
func Triangle() []Vertex {
	return []Vertex{
		{Pos: glm.Vec3{0.0, 0.5, 0.5}, Color: glm.Vec4{1.0, 0.0, 0.0, 1.0}},
		{Pos: glm.Vec3{0.5, -0.5, 0.5}, Color: glm.Vec4{0.0, 1.0, 0.0, 1.0}},
		{Pos: glm.Vec3{-0.5, -0.5, 0.5}, Color: glm.Vec4{0.0, 0.0, 1.0, 1.0}},
	}
}

// Bytes packs vertices as little endian floats, laid out
// like VertexAttributeDescriptions describe them.
func Bytes(vertices []Vertex) []byte {
	out := make([]byte, 0, len(vertices)*VertexSize)
	for _, v := range vertices {
		for _, f := range v.Pos {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
		for _, f := range v.Color {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

// Decode unpacks vertices written by Bytes.
func Decode(data []byte) ([]Vertex, error) {
	if len(data)%VertexSize != 0 {
		return nil, errors.Wrapf(ErrVertexData, "%d bytes", len(data))
	}
	vertices := make([]Vertex, len(data)/VertexSize)
	for i := range vertices {
		chunk := data[i*VertexSize : (i+1)*VertexSize]
		float := func(n int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(chunk[n*4:]))
		}
		vertices[i] = Vertex{
			Pos:   glm.Vec3{float(0), float(1), float(2)},
			Color: glm.Vec4{float(3), float(4), float(5), float(6)},
		}
	}
	return vertices, nil
}

// VertexBindingDescriptions return Vulkan Vertex descriptors
func VertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(VertexSize),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributeDescriptions return Vulkan attribute descriptors
func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
	}
}
