package vkng

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/twotriangles/gpu"
)

func TestCheckClassifiesResults(t *testing.T) {
	c := qt.New(t)

	c.Assert(check(core1_0.VKSuccess, nil, "present"), qt.IsNil)
	c.Assert(check(khr_swapchain.VKSuboptimal, nil, "present"), qt.IsNil)
	c.Assert(suboptimal(khr_swapchain.VKSuboptimal), qt.IsTrue)
	c.Assert(suboptimal(core1_0.VKSuccess), qt.IsFalse)

	err := check(khr_swapchain.VKErrorOutOfDate, errors.New("out of date"), "acquire next image")
	c.Assert(errors.Is(err, gpu.ErrOutOfDate), qt.IsTrue)
	c.Assert(gpu.IsInvalidation(err), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "acquire next image: out of date")

	err = check(core1_0.VKErrorDeviceLost, errors.New("lost"), "queue submit")
	c.Assert(errors.Is(err, gpu.ErrDeviceLost), qt.IsTrue)
	c.Assert(gpu.IsInvalidation(err), qt.IsFalse)

	boom := errors.New("boom")
	err = check(core1_0.VKErrorOutOfHostMemory, boom, "map memory")
	c.Assert(errors.Is(err, boom), qt.IsTrue)
	c.Assert(errors.Is(err, gpu.ErrDeviceLost), qt.IsFalse)
}
