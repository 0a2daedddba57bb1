// Package present supplements the core rasterisation pipeline with an
// optional windowed-presentation path: copying a Renderer.RenderFrame
// result into a caller-owned GPU texture, so the pipeline is runnable
// end-to-end instead of only testable through PNG readback.
//
// Window creation, input handling, and orbit-camera math remain out of
// scope here; Presenter only records the copy into whatever texture the
// host hands it (a swap-chain frame, or any other sampled/render-target
// texture the host already owns and presents itself).
package present

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// presentFenceTimeout bounds how long Present waits for the GPU to finish
// the copy, mirroring internal/gpu's splatFenceTimeout.
const presentFenceTimeout = 5 * time.Second

// halProvider matches the device-sharing methods gpu.Backend exposes
// (HalDevice/HalQueue): any type that exposes its hal.Device/hal.Queue as
// `any` can hand them to a second GPU subsystem without that subsystem
// opening its own device.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// copyPitchAlignment is WebGPU's (and DX12's) required row-pitch
// alignment for buffer<->texture copies.
const copyPitchAlignment = 256

// Presenter copies packed RGBA8 framebuffers into a GPU texture via a
// buffer-to-texture copy, sharing the device/queue of whichever Backend
// produced the pixels.
//
// Presenter is grounded on internal/gpu's render_session.go/sdf_render.go
// CopyTextureToBuffer readback (same hal.BufferTextureCopy/
// hal.ImageDataLayout/hal.ImageCopyTexture shape, run in reverse) rather
// than a sampled-texture render pass: no texture-view or sampler
// hal.BindGroupEntry construction is evidenced anywhere in the retrieved
// gogpu-gg pack, so Present avoids needing one.
type Presenter struct {
	device hal.Device
	queue  hal.Queue
}

// NewPresenter binds a Presenter to a provider's shared hal.Device/
// hal.Queue. provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue respectively (gpu.Backend already
// does).
func NewPresenter(provider any) (*Presenter, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("present: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("present: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("present: provider HalQueue is not hal.Queue")
	}
	return &Presenter{device: device, queue: queue}, nil
}

// Target describes the GPU texture Present writes into and the usage
// transition around the copy. OldUsage/NewUsage bracket the copy with a
// TransitionTextures barrier exactly as render_session.go does around its
// CopyTextureToBuffer call — the no-op on backends that don't need
// explicit layout transitions, required on Vulkan.
type Target struct {
	Texture  hal.Texture
	Width    uint32
	Height   uint32
	OldUsage gputypes.TextureUsage
	NewUsage gputypes.TextureUsage
}

// Present copies a packed RGBA8 framebuffer (row-major, Width*Height*4
// bytes, the exact shape gpu.Renderer.RenderFrame returns) into target.
// The GPU-side row pitch is padded to copyPitchAlignment bytes as
// required by CopyBufferToTexture; the padding happens entirely on the
// staging buffer, never touching pixels.
func (p *Presenter) Present(pixels []byte, target Target) error {
	want := int(target.Width) * int(target.Height) * 4
	if len(pixels) != want {
		return fmt.Errorf("present: pixels length %d, want %d (%dx%d RGBA8)", len(pixels), want, target.Width, target.Height)
	}

	bytesPerRow := target.Width * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(target.Height)

	staging, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "present_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("present: create staging buffer: %w", err)
	}
	defer p.device.DestroyBuffer(staging)

	if alignedBytesPerRow == bytesPerRow {
		p.queue.WriteBuffer(staging, 0, pixels)
	} else {
		padded := make([]byte, stagingSize)
		for row := uint32(0); row < target.Height; row++ {
			srcOff := int(row) * int(bytesPerRow)
			dstOff := int(row) * int(alignedBytesPerRow)
			copy(padded[dstOff:dstOff+int(bytesPerRow)], pixels[srcOff:srcOff+int(bytesPerRow)])
		}
		p.queue.WriteBuffer(staging, 0, padded)
	}

	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "present_blit"})
	if err != nil {
		return fmt.Errorf("present: create encoder: %w", err)
	}
	if err := encoder.BeginEncoding("present_blit"); err != nil {
		return fmt.Errorf("present: begin encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: target.Texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: target.OldUsage,
			NewUsage: gputypes.TextureUsageCopyDst,
		},
	}})

	encoder.CopyBufferToTexture(staging, target.Texture, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: target.Height},
		TextureBase:  hal.ImageCopyTexture{Texture: target.Texture, MipLevel: 0},
		Size:         hal.Extent3D{Width: target.Width, Height: target.Height, DepthOrArrayLayers: 1},
	}})

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: target.Texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopyDst,
			NewUsage: target.NewUsage,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("present: end encoding: %w", err)
	}
	defer p.device.FreeCommandBuffer(cmdBuf)

	fence, err := p.device.CreateFence()
	if err != nil {
		return fmt.Errorf("present: create fence: %w", err)
	}
	defer p.device.DestroyFence(fence)

	if err := p.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("present: submit: %w", err)
	}
	ok, err := p.device.Wait(fence, 1, presentFenceTimeout)
	if err != nil {
		return fmt.Errorf("present: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("present: GPU wait timed out after %s", presentFenceTimeout)
	}
	return nil
}
