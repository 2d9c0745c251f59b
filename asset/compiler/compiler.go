package compiler

import (
	"fmt"
	"time"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/bvh"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/compiler/input"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

// The material assigned to meshes that reference an unknown material.
var defaultMaterial = scene.Material{
	BxdfParams: types.Vec4{1, 0, 1, 0},
	Kd:         types.Vec4{0.8, 0.8, 0.8, 0},
}

// A compiler option.
type Option func(*sceneCompiler)

// Select how two-mesh BVH leaves are flattened. Defaults to bvh.SplitLeaves.
func WithLeafPolicy(policy bvh.LeafPolicy) Option {
	return func(sc *sceneCompiler) {
		sc.leafPolicy = policy
	}
}

// Select the BVH split strategy. Defaults to bvh.SurfaceAreaHeuristic.
func WithScoreStrategy(strategy bvh.ScoreStrategy) Option {
	return func(sc *sceneCompiler) {
		sc.scoreStrategy = strategy
	}
}

type sceneCompiler struct {
	parsedScene    *input.Scene
	optimizedScene *scene.Scene
	logger         log.Logger

	leafPolicy    bvh.LeafPolicy
	scoreStrategy bvh.ScoreStrategy

	// Compiled materials indexed like parsedScene.Materials.
	materials []scene.Material
}

// Compile a scene representation parsed by a scene reader into a GPU-friendly
// optimized scene format.
func Compile(parsedScene *input.Scene, opts ...Option) (*scene.Scene, error) {
	compiler := &sceneCompiler{
		parsedScene:    parsedScene,
		optimizedScene: &scene.Scene{},
		logger:         log.New("scene compiler"),
		leafPolicy:     bvh.SplitLeaves,
		scoreStrategy:  bvh.SurfaceAreaHeuristic,
	}
	for _, opt := range opts {
		opt(compiler)
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene")

	compiler.processMaterials()

	err := compiler.partitionGeometry()
	if err != nil {
		return nil, err
	}

	compiler.createEmitters()
	compiler.setupCamera()

	compiler.logger.Noticef("compiled scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return compiler.optimizedScene, nil
}

// Convert parsed materials into their fixed-layout representation.
func (sc *sceneCompiler) processMaterials() {
	sc.logger.Noticef("processing %d materials", len(sc.parsedScene.Materials))

	sc.materials = make([]scene.Material, len(sc.parsedScene.Materials))
	for index, mat := range sc.parsedScene.Materials {
		sc.materials[index] = scene.Material{
			BxdfParams: types.Vec4{mat.Roughness, mat.Metallic, mat.IOR, 0},
			Kd:         mat.Kd.Vec4(0),
			Ks:         mat.Ks.Vec4(0),
			Ke:         mat.Ke.Vec4(0),
		}
		if !mat.Used {
			sc.logger.Debugf("material %q is not referenced by any mesh", mat.Name)
		}
	}
}

func (sc *sceneCompiler) material(index int) scene.Material {
	if index < 0 || index >= len(sc.materials) {
		return defaultMaterial
	}
	return sc.materials[index]
}

// Copy mesh geometry into the flat scene lists and partition the meshes
// into a BVH where each flattened leaf references a single mesh.
func (sc *sceneCompiler) partitionGeometry() error {
	start := time.Now()
	sc.logger.Notice("partitioning geometry")

	meshes := make([]*input.Mesh, 0, len(sc.parsedScene.Meshes))
	totalVertices, totalIndices := 0, 0
	for _, pm := range sc.parsedScene.Meshes {
		if pm.TriangleCount() == 0 {
			sc.logger.Warningf("skipping mesh %q without triangles", pm.Name)
			continue
		}
		meshes = append(meshes, pm)
		totalVertices += len(pm.Vertices)
		totalIndices += 3 * pm.TriangleCount()
	}

	sc.optimizedScene.VertexList = make([]scene.ComputeVertex, 0, totalVertices)
	sc.optimizedScene.UvList = make([]types.Vec2, 0, totalVertices)
	sc.optimizedScene.TangentList = make([]types.Vec4, 0, totalVertices)
	sc.optimizedScene.IndexList = make([]uint32, 0, totalIndices)
	sc.optimizedScene.MeshList = make([]scene.MeshRecord, len(meshes))

	volList := make([]bvh.BoundedVolume, len(meshes))
	for mIndex, pm := range meshes {
		volList[mIndex] = pm

		vertexOffset := uint32(len(sc.optimizedScene.VertexList))
		for _, v := range pm.Vertices {
			sc.optimizedScene.VertexList = append(sc.optimizedScene.VertexList, scene.ComputeVertex{
				Position: v.Position.Vec4(1),
				Normal:   v.Normal.Vec4(0),
			})
			sc.optimizedScene.UvList = append(sc.optimizedScene.UvList, v.TexCoord)
			sc.optimizedScene.TangentList = append(sc.optimizedScene.TangentList, v.Tangent.Vec4(0))
		}

		record := &sc.optimizedScene.MeshList[mIndex]
		record.Material = sc.material(pm.MaterialIndex)
		record.FirstIndex = uint32(len(sc.optimizedScene.IndexList))
		record.IndexCount = uint32(3 * pm.TriangleCount())
		record.SetBBox(pm.BBox())
		for _, index := range pm.Indices[:record.IndexCount] {
			if int(index) >= len(pm.Vertices) {
				return fmt.Errorf("scene compiler: mesh %q: vertex index %d out of range", pm.Name, index)
			}
			sc.optimizedScene.IndexList = append(sc.optimizedScene.IndexList, vertexOffset+index)
		}
	}

	sc.logger.Infof("building scene BVH tree (%d meshes)", len(meshes))
	tree := bvh.Build(volList, bvh.WithScoreStrategy(sc.scoreStrategy))
	nodes, stats, err := bvh.Flatten(tree, sc.leafPolicy)
	if err != nil {
		return fmt.Errorf("scene compiler: %w", err)
	}
	if err = bvh.Validate(nodes, len(meshes)); err != nil {
		return fmt.Errorf("scene compiler: %w", err)
	}
	if stats.DroppedMeshes > 0 {
		sc.logger.Warningf("%q leaf policy dropped %d meshes from the BVH", sc.leafPolicy, stats.DroppedMeshes)
	}
	sc.optimizedScene.BvhNodeList = nodes

	sc.logger.Noticef(
		"partitioned geometry in %d ms (%d nodes, %d leaves, depth %d)",
		time.Since(start).Nanoseconds()/1e6, stats.Nodes, stats.Leaves, tree.MaxDepth,
	)
	return nil
}

// Create emitters for the explicit scene lights and for every triangle of
// an emissive mesh.
func (sc *sceneCompiler) createEmitters() {
	emitters := make([]scene.Emitter, 0, len(sc.parsedScene.Lights))
	for _, light := range sc.parsedScene.Lights {
		switch light.Type {
		case input.PointLight:
			emitters = append(emitters, scene.NewPointLight(light.Position, light.Normal, light.Power))
		case input.QuadLight:
			emitters = append(emitters, scene.NewQuadLight(light.Position, light.EdgeU, light.EdgeV, light.Power))
		}
	}

	emissiveTris := 0
	for mIndex := range sc.optimizedScene.MeshList {
		record := &sc.optimizedScene.MeshList[mIndex]
		if !record.Material.IsEmissive() {
			continue
		}
		radiance := record.Material.Ke.Vec3()
		for tri := 0; tri < record.TriangleCount(); tri++ {
			v0, v1, v2 := sc.optimizedScene.Triangle(int32(mIndex), tri)
			emitter := scene.NewTriangleLight(v0, v1, v2, radiance)
			if emitter.Area <= 0 {
				continue
			}
			emitters = append(emitters, emitter)
			emissiveTris++
		}
	}

	sc.optimizedScene.Emitters = emitters
	if len(emitters) > 0 {
		sc.logger.Infof("created %d emitters (%d emissive triangles)", len(emitters), emissiveTris)
	} else {
		sc.logger.Warning("the scene contains no lights or emissive primitives; output will appear black!")
	}
}

// Initialize and position the camera for the scene.
func (sc *sceneCompiler) setupCamera() {
	parsed := sc.parsedScene.Camera
	if parsed == nil {
		parsed = input.NewScene().Camera
	}
	sc.optimizedScene.Camera = scene.NewCamera(parsed.FOV)
	sc.optimizedScene.Camera.Position = parsed.Eye
	sc.optimizedScene.Camera.LookAt = parsed.Look
	sc.optimizedScene.Camera.Up = parsed.Up
}
