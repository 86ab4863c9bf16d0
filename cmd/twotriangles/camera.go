package main

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	orbitRadius = 5
	// orbitPeriod is the number of seconds for one full turn.
	orbitPeriod = 8
)

// orbit is the camera transform t seconds in: the eye circles the origin
// in the XZ plane and looks at it.
func orbit(t float64, aspect float32) mgl32.Mat4 {
	angle := 2 * math.Pi * math.Mod(t, orbitPeriod) / orbitPeriod
	eye := mgl32.Vec3{
		float32(orbitRadius * math.Sin(angle)),
		0,
		float32(orbitRadius * math.Cos(angle)),
	}
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(70), aspect, 0.1, 1000)
	// Vulkan clip space has Y pointing down.
	proj[5] *= -1
	return proj.Mul4(view)
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Errorf("shader of %d bytes is not a whole number of words", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return code, nil
}
