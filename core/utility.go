package core

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unsafe"

	"github.com/gobuffalo/packd"
	"github.com/pkg/errors"
)

const (
	shaderSuffix = ".spv"
	spirvMagic   = 0x07230203
)

// ErrNoShaders is returned when a shader source holds no compiled shaders.
var ErrNoShaders = errors.New("no compiled shaders found")

// ShaderSource is anything compiled shaders can be listed and read from:
// a packr box, a kar archive or a directory.
type ShaderSource interface {
	packd.Finder
	packd.Lister
}

// ShaderFile is a compiled shader read from a ShaderSource.
type ShaderFile struct {
	Name string
	Type ShaderType
	Code []byte
}

// parseShaderName splits a compiled shader file name. It is important that
// the file name does not contain more than two dots, the first is always
// the name of the shader, second is type, and the third one ensures that
// the shader is compiled (only compiled shaders have an .spv extension).
func parseShaderName(file string) (string, ShaderType, bool) {
	base := path.Base(filepath.ToSlash(file))
	if !strings.HasSuffix(base, shaderSuffix) {
		return "", UnknownShaderType, false
	}

	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 || nodes[0] == "" {
		return "", UnknownShaderType, false
	}

	switch nodes[1] {
	case "frag":
		return nodes[0], FragmentShaderType, true
	case "vert":
		return nodes[0], VertexShaderType, true
	default:
		return "", UnknownShaderType, false
	}
}

// LoadShaders reads every compiled shader of src, ordered by name.
// Files not following the naming rule are skipped.
func LoadShaders(src ShaderSource) ([]ShaderFile, error) {
	names := src.List()
	sort.Strings(names)

	var shaders []ShaderFile
	for _, file := range names {
		name, shaderType, ok := parseShaderName(file)
		if !ok {
			continue
		}

		code, err := src.Find(file)
		if err != nil {
			return nil, errors.Wrapf(err, "read shader %s", file)
		}
		if err := validateSPIRV(code); err != nil {
			return nil, errors.Wrapf(err, "shader %s", file)
		}

		shaders = append(shaders, ShaderFile{
			Name: name,
			Type: shaderType,
			Code: code,
		})
	}

	if len(shaders) == 0 {
		return nil, ErrNoShaders
	}
	return shaders, nil
}

func validateSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return errors.Errorf("%d bytes is not a SPIR-V module", len(code))
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return errors.New("missing SPIR-V magic number")
	}
	return nil
}

// DirectoryShaders returns a ShaderSource reading from dir on disk.
func DirectoryShaders(dir string) ShaderSource {
	return directorySource(dir)
}

type directorySource string

func (d directorySource) Find(name string) ([]byte, error) {
	return ioutil.ReadFile(filepath.Join(string(d), filepath.FromSlash(name)))
}

func (d directorySource) FindString(name string) (string, error) {
	b, err := d.Find(name)
	return string(b), err
}

// List walks the directory, a failing walk lists nothing.
func (d directorySource) List() []string {
	var files []string
	filepath.Walk(string(d), func(p string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(string(d), p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files
}

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// SafeString null-terminates s for the vulkan API.
func SafeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

// SafeStrings null-terminates every string of sgs.
func SafeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, SafeString(s))
	}
	return safe
}
