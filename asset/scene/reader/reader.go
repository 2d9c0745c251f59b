package reader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
)

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read scene definition from a resource.
	Read(*asset.Resource) (*scene.Scene, error)
}

// Read scene from file. Wavefront scenes are compiled using the supplied
// compiler options; compiled zip scenes are loaded as-is.
func ReadScene(filename string, opts ...compiler.Option) (*scene.Scene, error) {
	// Select reader based on file extension
	var reader Reader
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".obj":
		reader = newWavefrontReader(opts...)
	case ".zip":
		reader = newZipSceneReader()
	default:
		return nil, fmt.Errorf("readScene: unsupported file format %q", filename)
	}

	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return reader.Read(res)
}
