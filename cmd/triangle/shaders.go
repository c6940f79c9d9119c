// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

//go:generate glslangValidator -V ../../shaders/triangle.vert -o ../../shaders/triangle.vert.spv
//go:generate glslangValidator -V ../../shaders/triangle.frag -o ../../shaders/triangle.frag.spv

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"

	"github.com/devblok/hellotriangle/core"
	"github.com/devblok/hellotriangle/utility/kar"
)

// shaderBox holds the shaders built next to the sources.
var shaderBox = packr.NewBox("../../shaders")

// loadShaders reads compiled shaders from a kar archive, a directory
// or, when path does not exist, the packed shader box.
func loadShaders(path string) ([]core.ShaderFile, error) {
	var src core.ShaderSource
	switch info, err := os.Stat(path); {
	case err != nil:
		log.WithField("path", path).Info("shaders not found on disk, using packed shaders")
		src = shaderBox
	case info.IsDir():
		src = core.DirectoryShaders(path)
	case strings.EqualFold(filepath.Ext(path), ".kar"):
		r, err := mmap.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "mmap.Open()")
		}
		defer r.Close()

		archive, err := kar.Open(r)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		src = archive
	default:
		return nil, errors.Errorf("%s is neither a directory nor a kar archive", path)
	}

	files, err := core.LoadShaders(src)
	if errors.Cause(err) == core.ErrNoShaders {
		return nil, errors.Wrapf(err, "%s: compile them with go generate ./cmd/triangle, or run with -clear-only", path)
	}
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		log.WithFields(log.Fields{
			"name": f.Name,
			"type": f.Type,
			"size": len(f.Code),
		}).Debug("shader loaded")
	}
	return files, nil
}
