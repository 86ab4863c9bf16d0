package renderer

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu/gputest"
	"github.com/vkngwrapper/twotriangles/mesh"
)

func encode(c *qt.C, data interface{}) []byte {
	buf := &bytes.Buffer{}
	c.Assert(binary.Write(buf, binary.LittleEndian, data), qt.IsNil)
	return buf.Bytes()
}

func TestBuffersHoldUploadedData(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	inst := gputest.NewInstance()
	win := gputest.NewWindow(800, 600)
	ctx, err := device.New(inst, win, device.Config{Log: log})
	c.Assert(err, qt.IsNil)
	dev := inst.Devices()[0]

	r, err := New(ctx, win, Assets{
		VertexShader: []uint32{0x07230203},
		Vertices:     mesh.TwoTriangles(),
	}, Config{Log: log})
	c.Assert(err, qt.IsNil)

	vertices := dev.MemoryContents(r.vertices.memory)
	want := encode(c, mesh.TwoTriangles())
	c.Assert(len(vertices) >= len(want), qt.IsTrue)
	c.Assert(vertices[:len(want)], qt.DeepEquals, want)

	c.Assert(r.uniforms.buffers, qt.HasLen, r.frames.Len())
	c.Assert(dev.DescriptorWrites(), qt.HasLen, r.frames.Len())

	transform := mgl32.Translate3D(1, 2, 3)
	c.Assert(r.AdvanceFrame(transform), qt.IsNil)

	got := dev.MemoryContents(r.uniforms.buffers[0].memory)
	c.Assert(got[:uniformSize], qt.DeepEquals, encode(c, transform))
	untouched := dev.MemoryContents(r.uniforms.buffers[1].memory)
	c.Assert(untouched[:uniformSize], qt.DeepEquals, make([]byte, uniformSize))

	for i, buf := range r.uniforms.buffers {
		c.Assert(dev.MemoryTypeOf(buf.memory), qt.Equals, 1, qt.Commentf("uniform %d", i))
	}

	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(r.Destroy(idle), qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestHostBufferRejectsOversizedWrite(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	inst := gputest.NewInstance()
	ctx, err := device.New(inst, gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)
	dev := inst.Devices()[0]

	b, err := createHostBuffer(ctx, 8, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(b.write(dev, [4]float32{}), qt.ErrorMatches, `16 bytes do not fit a buffer of \d+`)

	b.destroy(dev)
	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}
