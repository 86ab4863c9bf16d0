package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// check converts a wrapper result into a port error carrying the matching
// failure class.
func check(res common.VkResult, err error, op string) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Mark(errors.Wrap(errOrResult(res, err), op), gpu.ErrOutOfDate)
	case core1_0.VKErrorDeviceLost:
		return errors.Mark(errors.Wrap(errOrResult(res, err), op), gpu.ErrDeviceLost)
	}
	if err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

func errOrResult(res common.VkResult, err error) error {
	if err != nil {
		return err
	}
	return errors.Newf("%s", res)
}

func suboptimal(res common.VkResult) bool {
	return res == khr_swapchain.VKSuboptimal
}
