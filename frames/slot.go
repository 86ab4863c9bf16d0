package frames

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// ErrSlotState is returned for a slot operation not allowed in the slot's
// current state.
var ErrSlotState = errors.New("illegal frame slot transition")

// State is where a slot is in its Idle -> Recording -> Submitted cycle.
type State int

const (
	// StateIdle: the GPU is done with the slot's command buffer.
	StateIdle State = iota
	// StateRecording: the fence has been reset and commands are being
	// written.
	StateRecording
	// StateSubmitted: the command buffer is queued and the fence will be
	// signaled when it completes.
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

func (s *Set) slotFor(i int, allowed ...State) (*Slot, error) {
	if i < 0 || i >= len(s.slots) {
		return nil, errors.Newf("frame slot %d out of range [0,%d)", i, len(s.slots))
	}
	slot := &s.slots[i]
	for _, st := range allowed {
		if slot.state == st {
			return slot, nil
		}
	}
	return nil, errors.Wrapf(ErrSlotState, "slot %d is %s", i, slot.state)
}

// Wait blocks until the GPU is done with slot i, resets its fence and
// moves it to Recording. It must be called before the slot's command
// buffer is reset.
func (s *Set) Wait(i int) error {
	slot, err := s.slotFor(i, StateIdle, StateSubmitted)
	if err != nil {
		return err
	}

	dev := s.ctx.Device()
	if err := dev.WaitForFences(slot.Fence); err != nil {
		return errors.Wrapf(err, "wait for slot %d", i)
	}
	slot.state = StateIdle

	if err := dev.ResetFences(slot.Fence); err != nil {
		return errors.Wrapf(err, "reset fence of slot %d", i)
	}
	slot.state = StateRecording
	return nil
}

// Record resets slot i's command buffer and records into it with fn.
func (s *Set) Record(i int, fn func(buffer gpu.CommandBuffer) error) error {
	slot, err := s.slotFor(i, StateRecording)
	if err != nil {
		return err
	}

	dev := s.ctx.Device()
	if err := dev.ResetCommandBuffer(slot.CommandBuffer); err != nil {
		return errors.Wrapf(err, "reset command buffer of slot %d", i)
	}
	if err := dev.BeginCommandBuffer(slot.CommandBuffer); err != nil {
		return errors.Wrapf(err, "begin command buffer of slot %d", i)
	}
	if err := fn(slot.CommandBuffer); err != nil {
		return err
	}
	if err := dev.EndCommandBuffer(slot.CommandBuffer); err != nil {
		return errors.Wrapf(err, "end command buffer of slot %d", i)
	}
	return nil
}

// Submit queues slot i's command buffer. It waits for ImageReady at the
// color-attachment-output stage, signals RenderComplete and the slot's
// fence, and moves the slot to Submitted.
func (s *Set) Submit(i int) error {
	slot, err := s.slotFor(i, StateRecording)
	if err != nil {
		return err
	}

	err = s.ctx.Submit(gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{slot.ImageReady},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{slot.CommandBuffer},
		SignalSemaphores: []gpu.Semaphore{slot.RenderComplete},
	}, slot.Fence)
	if err != nil {
		return errors.Wrapf(err, "submit slot %d", i)
	}
	slot.state = StateSubmitted
	return nil
}

// Abandon returns slot i from Recording to Idle when its frame failed after
// Acquired. An empty submission consumes ImageReady and signals the fence
// again, so the slot's next Wait returns.
func (s *Set) Abandon(i int) error {
	slot, err := s.slotFor(i, StateRecording)
	if err != nil {
		return err
	}

	err = s.ctx.Submit(gpu.SubmitInfo{
		WaitSemaphores: []gpu.Semaphore{slot.ImageReady},
		WaitStages:     []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
	}, slot.Fence)
	if err != nil {
		return errors.Wrapf(err, "abandon slot %d", i)
	}
	slot.state = StateIdle
	return nil
}
