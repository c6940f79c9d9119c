// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines rendering related features that renderers must implement.
package gfx

import glm "github.com/go-gl/mathgl/mgl32"

// ClearColor is the background of every frame.
var ClearColor = glm.Vec4{1.0, 0.2, 0.4, 1.0}

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// ReleaseAll releases items in reverse order, skipping nil ones.
func ReleaseAll(items ...Releasable) {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] != nil {
			items[i].Release()
		}
	}
}

// ReleaseFunc adapts a plain function to Releasable.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() {
	f()
}
