package writer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
)

// A Writer persists a compiled scene.
type Writer interface {
	Write(*scene.Scene) error
}

// Write a compiled scene to filename. Only the .zip format is supported.
func WriteScene(sc *scene.Scene, filename string) error {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".zip" {
		return fmt.Errorf("writeScene: unsupported output format %q", ext)
	}
	var w Writer = newZipSceneWriter(filename)
	return w.Write(sc)
}
