package writer

import (
	"archive/zip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
)

const (
	// Archive entries.
	dataFile    = "scene.bin"
	versionFile = "version"

	// Bumped whenever the layout of the gob-encoded records changes.
	FormatVersion = "bir-scene/1"
)

type zipSceneWriter struct {
	logger    log.Logger
	sceneFile string
}

func newZipSceneWriter(sceneFile string) *zipSceneWriter {
	return &zipSceneWriter{
		logger:    log.New("zip writer"),
		sceneFile: sceneFile,
	}
}

// Write the scene archive, replacing any existing file.
func (w *zipSceneWriter) Write(sc *scene.Scene) error {
	w.logger.Noticef("writing compiled scene to %s", w.sceneFile)
	start := time.Now()

	f, err := os.Create(w.sceneFile)
	if err != nil {
		return err
	}

	err = WriteSceneTo(sc, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(w.sceneFile)
		return err
	}

	w.logger.Noticef(
		"wrote %d nodes, %d meshes and %d emitters in %d ms",
		len(sc.BvhNodeList), len(sc.MeshList), len(sc.Emitters), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

// Write a zip archive with a format version entry and the gob-encoded
// scene to out.
func WriteSceneTo(sc *scene.Scene, out io.Writer) error {
	zw := zip.NewWriter(out)

	vw, err := zw.Create(versionFile)
	if err != nil {
		return err
	}
	if _, err = io.WriteString(vw, FormatVersion); err != nil {
		return err
	}

	dw, err := zw.Create(dataFile)
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(dw).Encode(sc); err != nil {
		return fmt.Errorf("zipSceneWriter: could not encode scene: %w", err)
	}
	return zw.Close()
}
