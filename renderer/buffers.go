package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu"
)

// hostBuffer is a buffer bound to its own host-visible allocation.
type hostBuffer struct {
	buffer gpu.Buffer
	memory gpu.Memory
	size   int
}

func createHostBuffer(ctx *device.Context, size int, usage core1_0.BufferUsageFlags) (hostBuffer, error) {
	dev := ctx.Device()
	var b hostBuffer
	var err error

	b.buffer, err = dev.CreateBuffer(gpu.BufferCreateInfo{Size: size, Usage: usage})
	if err != nil {
		return b, gpu.Creation(err, "buffer")
	}

	reqs := dev.BufferMemoryRequirements(b.buffer)
	typeIndex, err := ctx.MemoryTypeIndex(reqs.MemoryTypeBits, core1_0.MemoryPropertyHostVisible)
	if err != nil {
		b.destroy(dev)
		return hostBuffer{}, err
	}

	b.memory, err = dev.AllocateMemory(reqs.Size, typeIndex)
	if err != nil {
		b.destroy(dev)
		return hostBuffer{}, gpu.Creation(err, "buffer memory")
	}
	b.size = reqs.Size

	if err = dev.BindBufferMemory(b.buffer, b.memory, 0); err != nil {
		b.destroy(dev)
		return hostBuffer{}, errors.Wrap(err, "bind buffer memory")
	}
	return b, nil
}

// write encodes data at the start of the buffer: map, copy, flush the
// whole allocation, unmap.
func (b hostBuffer) write(dev gpu.Device, data interface{}) error {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return errors.Wrap(err, "encode buffer data")
	}
	if buf.Len() > b.size {
		return errors.Newf("%d bytes do not fit a buffer of %d", buf.Len(), b.size)
	}

	mapped, err := dev.MapMemory(b.memory, 0, b.size)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer dev.UnmapMemory(b.memory)

	copy(mapped, buf.Bytes())
	return errors.Wrap(dev.FlushMemory(b.memory, 0, b.size), "flush buffer memory")
}

func (b hostBuffer) destroy(dev gpu.Device) {
	dev.DestroyBuffer(b.buffer)
	dev.FreeMemory(b.memory)
}

// uniformSet is one camera uniform buffer and descriptor set per frame
// slot, so a slot's uniform is only rewritten after its fence wait.
type uniformSet struct {
	ctx     *device.Context
	pool    gpu.DescriptorPool
	buffers []hostBuffer
	sets    []gpu.DescriptorSet
}

func buildUniforms(ctx *device.Context, layout gpu.DescriptorSetLayout, slots int, size int) (_ *uniformSet, err error) {
	u := &uniformSet{ctx: ctx}
	defer func() {
		if err != nil {
			u.release()
		}
	}()

	dev := ctx.Device()
	u.pool, err = dev.CreateDescriptorPool(slots, []core1_0.DescriptorPoolSize{
		{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: slots,
		},
	})
	if err != nil {
		return nil, gpu.Creation(err, "descriptor pool")
	}

	layouts := make([]gpu.DescriptorSetLayout, slots)
	for i := range layouts {
		layouts[i] = layout
	}
	u.sets, err = dev.AllocateDescriptorSets(u.pool, layouts)
	if err != nil {
		return nil, gpu.Creation(err, "descriptor sets")
	}

	writes := make([]gpu.DescriptorBufferWrite, 0, slots)
	for i := 0; i < slots; i++ {
		b, err := createHostBuffer(ctx, size, core1_0.BufferUsageUniformBuffer)
		if err != nil {
			return nil, errors.Wrapf(err, "uniform buffer %d", i)
		}
		u.buffers = append(u.buffers, b)
		writes = append(writes, gpu.DescriptorBufferWrite{
			Set:     u.sets[i],
			Binding: 0,
			Type:    core1_0.DescriptorTypeUniformBuffer,
			Buffer:  b.buffer,
			Offset:  0,
			Range:   size,
		})
	}

	if err = dev.UpdateDescriptorSets(writes); err != nil {
		return nil, errors.Wrap(err, "update descriptor sets")
	}
	return u, nil
}

func (u *uniformSet) write(slot int, data interface{}) error {
	return errors.Wrapf(u.buffers[slot].write(u.ctx.Device(), data), "write uniform of slot %d", slot)
}

func (u *uniformSet) destroy(idle device.Idle) error {
	if err := u.ctx.CheckIdle(idle); err != nil {
		return errors.Wrap(err, "destroy uniforms")
	}
	u.release()
	return nil
}

func (u *uniformSet) release() {
	dev := u.ctx.Device()
	for _, b := range u.buffers {
		b.destroy(dev)
	}
	u.buffers = nil
	dev.DestroyDescriptorPool(u.pool)
	u.pool, u.sets = 0, nil
}
