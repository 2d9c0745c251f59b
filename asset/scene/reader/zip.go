package reader

import (
	"archive/zip"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene/writer"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
)

const (
	dataFile    = "scene.bin"
	versionFile = "version"
)

type zipSceneReader struct {
	logger log.Logger
}

func newZipSceneReader() *zipSceneReader {
	return &zipSceneReader{
		logger: log.New("zip reader"),
	}
}

// Load a compiled scene archive. The BVH is validated before the scene is
// returned so a corrupt archive never reaches the tracer.
func (p *zipSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	p.logger.Noticef(`loading compiled scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// zip.NewReader needs an io.ReaderAt; resources may be http streams so
	// buffer the archive in memory.
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zipSceneReader: %s: %w", sceneRes.Path(), err)
	}

	var sc *scene.Scene
	for _, f := range zr.File {
		switch f.Name {
		case versionFile:
			if err = checkVersion(f); err != nil {
				return nil, fmt.Errorf("zipSceneReader: %s: %w", sceneRes.Path(), err)
			}
		case dataFile:
			if sc, err = decodeScene(f); err != nil {
				return nil, fmt.Errorf("zipSceneReader: failed to load %s: %w", f.Name, err)
			}
		default:
			p.logger.Warningf("unknown file %s in scene zip file; skipping", f.Name)
		}
	}

	if sc == nil {
		return nil, fmt.Errorf("zipSceneReader: %s does not contain %s", sceneRes.Path(), dataFile)
	}
	if err = bvh.Validate(sc.BvhNodeList, len(sc.MeshList)); err != nil {
		return nil, fmt.Errorf("zipSceneReader: %s: %w", sceneRes.Path(), err)
	}

	p.logger.Noticef("loaded scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return sc, nil
}

func checkVersion(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	version, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if string(version) != writer.FormatVersion {
		return fmt.Errorf("unsupported scene format %q; expected %q", version, writer.FormatVersion)
	}
	return nil
}

func decodeScene(f *zip.File) (*scene.Scene, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sc := &scene.Scene{}
	if err = gob.NewDecoder(rc).Decode(sc); err != nil {
		return nil, err
	}
	return sc, nil
}
