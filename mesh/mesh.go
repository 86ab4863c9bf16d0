// Package mesh defines the vertex record the renderer draws and ways to
// obtain vertex lists.
package mesh

import (
	"io"
	"os"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

// VertexSize is the stride of a Vertex in a vertex buffer.
const VertexSize = int(unsafe.Sizeof(Vertex{}))

// TwoTriangles is the built-in scene: two triangles sharing the origin.
func TwoTriangles() []Vertex {
	return []Vertex{
		{Position: mgl32.Vec3{1, 0, 0}, Color: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 1, 0}, Color: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec3{0, 0, 0}, Color: mgl32.Vec3{0, 0, 0}},
		{Position: mgl32.Vec3{0, 0, 0}, Color: mgl32.Vec3{0, 0, 0}},
		{Position: mgl32.Vec3{0, 1, 0}, Color: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec3{0, 0, 1}, Color: mgl32.Vec3{0, 0, 1}},
	}
}

func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    VertexSize,
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// LoadOBJ reads a Wavefront OBJ file and returns its faces as a triangle
// list. Polygons are fanned from their first vertex. mtlPath may be empty.
// Vertices are colored by their normalized position so the shape is
// readable without lighting.
func LoadOBJ(objPath, mtlPath string) ([]Vertex, error) {
	meshFile, err := os.Open(objPath)
	if err != nil {
		return nil, errors.Wrap(err, "open mesh")
	}
	defer meshFile.Close()

	// An empty material source keeps the decoder from looking for a
	// material file next to the mesh.
	var materials io.Reader = strings.NewReader("")
	if mtlPath != "" {
		matFile, err := os.Open(mtlPath)
		if err != nil {
			return nil, errors.Wrap(err, "open materials")
		}
		defer matFile.Close()
		materials = matFile
	}

	decoder, err := obj.DecodeReader(meshFile, materials)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", objPath)
	}

	var vertices []Vertex
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					vertices = append(vertices, vertexAt(decoder, face.Vertices[corner]))
				}
			}
		}
	}
	if len(vertices) == 0 {
		return nil, errors.Newf("%s contains no faces", objPath)
	}
	return vertices, nil
}

func vertexAt(decoder *obj.Decoder, index int) Vertex {
	pos := mgl32.Vec3{
		decoder.Vertices[index*3],
		decoder.Vertices[index*3+1],
		decoder.Vertices[index*3+2],
	}
	color := mgl32.Vec3{1, 1, 1}
	if l := pos.Len(); l > 0 {
		n := pos.Mul(1 / l)
		color = mgl32.Vec3{abs(n[0]), abs(n[1]), abs(n[2])}
	}
	return Vertex{Position: pos, Color: color}
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
