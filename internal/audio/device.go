package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Device is an optional miniaudio playback device that pulls rendered
// samples from the player for operator monitoring. The player is fully
// functional without it.
type Device struct {
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	player *Player
	log    *slog.Logger

	mu  sync.Mutex
	pos time.Duration // device playback position on the player timeline
}

// OpenDevice initializes the default playback device at the player's fixed
// format and starts pulling samples.
func OpenDevice(p *Player, log *slog.Logger) (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	d := &Device{ctx: ctx, player: p, log: log.With(slog.String("component", "audio-device"))}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onSendFrames,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	d.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("start playback device: %w", err)
	}

	d.log.Info("playback device started", slog.Int("sample_rate", SampleRate))
	return d, nil
}

func (d *Device) onSendFrames(out, _ []byte, frameCount uint32) {
	n := int(frameCount)
	samples := make([]float32, n)

	d.mu.Lock()
	from := d.pos
	d.pos += time.Duration(n) * time.Second / SampleRate
	d.mu.Unlock()

	d.player.RenderAt(from, samples)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
}

// Close stops the device and releases the audio context.
func (d *Device) Close() {
	if d == nil {
		return
	}
	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	d.log.Info("playback device closed")
}
