package reader

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/input"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/tracer/sampler"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

const defaultMaterialName = "default"

type wavefrontSceneReader struct {
	logger log.Logger

	// Options passed to the scene compiler.
	compilerOpts []compiler.Option

	// The parsed scene.
	rawScene *input.Scene

	// A map of material names to indices in rawScene.Materials.
	matNameToIndex map[string]int

	// Currently selected material index or -1 if none is selected.
	curMaterial int

	// The active object name and the mesh receiving faces. A new mesh is
	// started whenever the object or the material changes.
	curObject string
	curMesh   *input.Mesh

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new text scene reader.
func newWavefrontReader(opts ...compiler.Option) *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront scene reader"),
		compilerOpts:   opts,
		rawScene:       input.NewScene(),
		matNameToIndex: make(map[string]int),
		curMaterial:    -1,
		curObject:      "default",
		vertexList:     make([]types.Vec3, 0),
		normalList:     make([]types.Vec3, 0),
		uvList:         make([]types.Vec2, 0),
		errStack:       make([]string, 0),
	}
}

// Read scene definition.
func (r *wavefrontSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	if err := r.parse(sceneRes); err != nil {
		return nil, err
	}
	r.processMaterials()

	r.logger.Noticef(
		"parsed scene in %d ms (%d meshes, %d materials, %d lights)",
		time.Since(start).Nanoseconds()/1e6, len(r.rawScene.Meshes), len(r.rawScene.Materials), len(r.rawScene.Lights),
	)

	// Compile scene into an optimized, gpu-friendly format
	return compiler.Compile(r.rawScene, r.compilerOpts...)
}

// Prune unused materials and update the material indices of the parsed
// meshes.
func (r *wavefrontSceneReader) processMaterials() {
	remap := make(map[int]int)
	kept := make([]*input.Material, 0, len(r.rawScene.Materials))
	for index, mat := range r.rawScene.Materials {
		if !mat.Used {
			r.logger.Infof("skipping unused material %q", mat.Name)
			continue
		}
		remap[index] = len(kept)
		kept = append(kept, mat)
	}

	for _, mesh := range r.rawScene.Meshes {
		mesh.MaterialIndex = remap[mesh.MaterialIndex]
	}

	if pruned := len(r.rawScene.Materials) - len(kept); pruned > 0 {
		r.logger.Noticef("pruned %d unused materials", pruned)
	}
	r.rawScene.Materials = kept
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n"))
	} else {
		errMsg = fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n"))
	}

	return errors.New(strings.Trim(errMsg, "\n"))
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Select the default material for surfaces not using one, creating it on
// first use.
func (r *wavefrontSceneReader) defaultMaterial() int {
	matIndex, exists := r.matNameToIndex[defaultMaterialName]
	if !exists {
		r.rawScene.Materials = append(r.rawScene.Materials, input.NewMaterial(defaultMaterialName))
		matIndex = len(r.rawScene.Materials) - 1
		r.matNameToIndex[defaultMaterialName] = matIndex
	}
	return matIndex
}

// Get the mesh that receives faces for the current object and material.
func (r *wavefrontSceneReader) activeMesh() *input.Mesh {
	if r.curMaterial < 0 {
		r.curMaterial = r.defaultMaterial()
	}
	if r.curMesh != nil && r.curMesh.MaterialIndex == r.curMaterial {
		return r.curMesh
	}

	name := r.curObject
	if r.curMesh != nil {
		name = fmt.Sprintf("%s_%s", r.curObject, r.rawScene.Materials[r.curMaterial].Name)
	}
	r.curMesh = input.NewMesh(name)
	r.curMesh.MaterialIndex = r.curMaterial
	r.rawScene.Meshes = append(r.rawScene.Meshes, r.curMesh)
	r.rawScene.Materials[r.curMaterial].Used = true
	return r.curMesh
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	// The main obj file may include (call) several other object files. Each
	// object file contains 1-based indices (when they are positive). By
	// tracking the current vertex/uv/normal offsets we can apply them
	// while parsing faces to select the correct coordinates.
	relVertexOffset := len(r.vertexList)
	relUvOffset := len(r.uvList)
	relNormalOffset := len(r.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for 'usemtl'; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, lineTokens[1])
			}
			r.curMaterial = matIndex
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvList = append(r.uvList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.curObject = lineTokens[1]
			r.curMesh = nil
		case "f":
			if err = r.parseFace(lineTokens, relVertexOffset, relUvOffset, relNormalOffset); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "camera_fov":
			r.rawScene.Camera.FOV, err = parseFloat32(lineTokens)
		case "camera_eye":
			r.rawScene.Camera.Eye, err = parseVec3(lineTokens)
		case "camera_look":
			r.rawScene.Camera.Look, err = parseVec3(lineTokens)
		case "camera_up":
			r.rawScene.Camera.Up, err = parseVec3(lineTokens)
		case "light_point", "light_quad":
			var light *input.Light
			light, err = parseLight(lineTokens)
			if err == nil {
				r.rawScene.Lights = append(r.rawScene.Lights, light)
			}
		case "s", "l", "p":
		default:
			r.logger.Debugf("%s:%d: ignoring unsupported directive %q", res.Path(), lineNum, lineTokens[0])
		}

		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}

	return scanner.Err()
}

// Parse face definition. Each face definitions consists of 3 or 4 arguments,
// one for each vertex. Each one of the vertex arguments is comprised of
// 1, 2 or 3 args separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate
// an offset off the end of the vertex/uv list. Quad faces are split into
// two triangles.
func (r *wavefrontSceneReader) parseFace(lineTokens []string, relVertexOffset, relUvOffset, relNormalOffset int) error {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return fmt.Errorf(`unsupported syntax for "f"; expected 3 arguments for triangular face or 4 arguments for a quad face; got %d. Select the triangulation option in your exporter`, len(lineTokens)-1)
	}

	var vertices [4]input.Vertex
	var vOffset int
	var err error
	expIndices := 0
	hasNormals, hasUVs := false, false
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices[arg].Position = r.vertexList[vOffset]

		if expIndices > 1 && vTokens[1] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[1], len(r.uvList), relUvOffset)
			if err != nil {
				return fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
			vertices[arg].TexCoord = r.uvList[vOffset]
			hasUVs = true
		}

		if expIndices > 2 && vTokens[2] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			vertices[arg].Normal = r.normalList[vOffset].Normalize()
			hasNormals = true
		}
	}

	mesh := r.activeMesh()

	triangles := [][3]int{{0, 1, 2}}
	if len(lineTokens) == 5 {
		triangles = append(triangles, [3]int{0, 2, 3})
	}
	for _, indices := range triangles {
		tri := [3]input.Vertex{vertices[indices[0]], vertices[indices[1]], vertices[indices[2]]}

		// If no normals are available generate them from the vertices
		if !hasNormals {
			faceNormal := tri[1].Position.Sub(tri[0].Position).Cross(tri[2].Position.Sub(tri[0].Position)).Normalize()
			for i := range tri {
				tri[i].Normal = faceNormal
			}
		}
		generateTangents(&tri, hasUVs)
		mesh.AddTriangle(tri[0], tri[1], tri[2])
	}

	return nil
}

// Calculate per-vertex tangents from the triangle uv parametrization. If the
// triangle has no usable uv coordinates an arbitrary tangent perpendicular
// to the normal is used.
func generateTangents(tri *[3]input.Vertex, hasUVs bool) {
	e1 := tri[1].Position.Sub(tri[0].Position)
	e2 := tri[2].Position.Sub(tri[0].Position)
	du1, dv1 := tri[1].TexCoord[0]-tri[0].TexCoord[0], tri[1].TexCoord[1]-tri[0].TexCoord[1]
	du2, dv2 := tri[2].TexCoord[0]-tri[0].TexCoord[0], tri[2].TexCoord[1]-tri[0].TexCoord[1]

	var tangent types.Vec3
	if det := du1*dv2 - du2*dv1; hasUVs && det != 0 {
		tangent = e1.Mul(dv2).Sub(e2.Mul(dv1)).Mul(1 / det)
	}

	for i := range tri {
		n := tri[i].Normal
		// Gram-Schmidt against the vertex normal.
		t := tangent.Sub(n.Mul(n.Dot(tangent)))
		if t.LenSq() < 1e-12 {
			t, _ = sampler.OrthonormalBasis(n)
		}
		tri[i].Tangent = t.Normalize()
	}
}

// Parse a wavefront material library.
func (r *wavefrontSceneReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *input.Material

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		if lineTokens[0] == "newmtl" {
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName := lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			curMaterial = input.NewMaterial(matName)
			r.rawScene.Materials = append(r.rawScene.Materials, curMaterial)
			r.matNameToIndex[matName] = len(r.rawScene.Materials) - 1
			continue
		}

		if curMaterial == nil {
			return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
		}

		switch lineTokens[0] {
		case "include":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			baseMaterialIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
			}

			// Overwrite material but keep the original name
			name := curMaterial.Name
			*curMaterial = *r.rawScene.Materials[baseMaterialIndex]
			curMaterial.Name = name
			curMaterial.Used = false
		case "Kd":
			curMaterial.Kd, err = parseVec3(lineTokens)
		case "Ks":
			curMaterial.Ks, err = parseVec3(lineTokens)
		case "Ke":
			curMaterial.Ke, err = parseVec3(lineTokens)
		case "Ni":
			curMaterial.IOR, err = parseFloat32(lineTokens)
		case "Pr":
			curMaterial.Roughness, err = parseFloat32(lineTokens)
		case "Pm":
			curMaterial.Metallic, err = parseFloat32(lineTokens)
		default:
			r.logger.Debugf("%s:%d: ignoring unsupported material directive %q", res.Path(), lineNum, lineTokens[0])
		}

		// Report any errors
		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}

	return scanner.Err()
}

// Parse a light definition. The following formats are supported:
// - light_point px py pz nx ny nz r g b
// - light_quad cx cy cz ux uy uz vx vy vz r g b
//
// A zero point light normal defines an omni-directional light. Colors
// specify the emitted flux.
func parseLight(lineTokens []string) (*input.Light, error) {
	switch lineTokens[0] {
	case "light_point":
		v, err := parseFloats(lineTokens, 9)
		if err != nil {
			return nil, err
		}
		return &input.Light{
			Type:     input.PointLight,
			Position: types.Vec3{v[0], v[1], v[2]},
			Normal:   types.Vec3{v[3], v[4], v[5]},
			Power:    types.Vec3{v[6], v[7], v[8]},
		}, nil
	case "light_quad":
		v, err := parseFloats(lineTokens, 12)
		if err != nil {
			return nil, err
		}
		return &input.Light{
			Type:     input.QuadLight,
			Position: types.Vec3{v[0], v[1], v[2]},
			EdgeU:    types.Vec3{v[3], v[4], v[5]},
			EdgeV:    types.Vec3{v[6], v[7], v[8]},
			Power:    types.Vec3{v[9], v[10], v[11]},
		}, nil
	}
	return nil, fmt.Errorf("unknown light type %q", lineTokens[0])
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse exactly count float arguments.
func parseFloats(lineTokens []string, count int) ([]float32, error) {
	if len(lineTokens) != count+1 {
		return nil, fmt.Errorf(`unsupported syntax for "%s"; expected %d arguments; got %d`, lineTokens[0], count, len(lineTokens)-1)
	}

	out := make([]float32, count)
	for index := range out {
		v, err := strconv.ParseFloat(lineTokens[index+1], 32)
		if err != nil {
			return nil, err
		}
		out[index] = float32(v)
	}
	return out, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
