package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// MalgoCapture streams fixed-size PCM chunks from a miniaudio capture device.
type MalgoCapture struct {
	*emitter

	name   string
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func initMalgoContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return ctx, nil
}

func releaseMalgoContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}

// ListMalgoDevices returns miniaudio capture devices. Availability and mute
// state are not exposed by miniaudio, so every listed device is reported usable.
func ListMalgoDevices(_ context.Context) ([]Device, error) {
	ctx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}
	defer releaseMalgoContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:          info.ID.String(),
			Description: info.Name(),
			State:       "idle",
			Available:   true,
			Default:     info.IsDefault != 0,
		})
	}
	return devices, nil
}

// StartMalgo opens the selected capture device (or the system default when
// selected.ID is empty) as mono s16 at the requested sample rate.
func StartMalgo(ctx context.Context, selected Device, format Format) (*MalgoCapture, error) {
	mctx, err := initMalgoContext()
	if err != nil {
		return nil, err
	}

	capture := &MalgoCapture{
		emitter: newEmitter(format),
		name:    selected.String(),
		ctx:     mctx,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(format.SampleRate)

	if id := strings.TrimSpace(selected.ID); id != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			releaseMalgoContext(mctx)
			return nil, fmt.Errorf("list capture devices: %w", err)
		}
		found := false
		for i := range infos {
			if infos[i].ID.String() == id {
				cfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			releaseMalgoContext(mctx)
			return nil, fmt.Errorf("capture device %q not found", id)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			_, _ = capture.push(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		releaseMalgoContext(mctx)
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		releaseMalgoContext(mctx)
		return nil, fmt.Errorf("starting capture device: %w", err)
	}
	capture.device = device

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()

	return capture, nil
}

// Describe returns the capture device for logs.
func (c *MalgoCapture) Describe() string {
	if c.name == "" {
		return "default"
	}
	return c.name
}

// Stop uninitializes the device and context, then closes Chunks.
func (c *MalgoCapture) Stop() error {
	if !c.beginStop() {
		return nil
	}
	if c.device != nil {
		c.device.Uninit()
	}
	releaseMalgoContext(c.ctx)
	c.finish()
	return nil
}
