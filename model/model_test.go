// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
)

func TestVertexLayout(t *testing.T) {
	c := qt.New(t)
	c.Assert(VertexSize, qt.Equals, 28)

	attrs := VertexAttributeDescriptions()
	c.Assert(attrs, qt.HasLen, 2)
	c.Assert(attrs[0].Offset, qt.Equals, uint32(0))
	c.Assert(attrs[1].Offset, qt.Equals, uint32(12))
	c.Assert(VertexBindingDescriptions()[0].Stride, qt.Equals, uint32(28))
}

func TestTriangleIsClockwise(t *testing.T) {
	c := qt.New(t)
	v := Triangle()
	c.Assert(v, qt.HasLen, 3)

	// y up clip space, so clockwise on screen has a negative cross product
	ab := v[1].Pos.Vec2().Sub(v[0].Pos.Vec2())
	ac := v[2].Pos.Vec2().Sub(v[0].Pos.Vec2())
	c.Assert(ab.X()*ac.Y()-ab.Y()*ac.X() < 0, qt.IsTrue)
}

func TestBytesDecode(t *testing.T) {
	c := qt.New(t)
	data := Bytes(Triangle())
	c.Assert(data, qt.HasLen, 3*VertexSize)

	// x of the second vertex, 0.5
	c.Assert(data[VertexSize:VertexSize+4], qt.DeepEquals, []byte{0x00, 0x00, 0x00, 0x3f})

	vertices, err := Decode(data)
	c.Assert(err, qt.IsNil)
	c.Assert(vertices, qt.DeepEquals, Triangle())

	_, err = Decode(data[:VertexSize+3])
	c.Assert(errors.Cause(err), qt.Equals, ErrVertexData)
}
