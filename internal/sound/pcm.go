package sound

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// PCM is the malgo-backed playback backend, mirroring the lifecycle of
// the teacher's capture.Capture (InitContext -> InitDevice -> Start ->
// Stop -> Uninit), with a playback device filling fragments from a
// Generator instead of a capture device draining them into a channel.
type PCM struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	dev *malgo.Device

	gen *Generator
}

// NewPCM builds a PCM backend that will be driven by gen once opened.
// gen's backend field is left nil by New; callers wire it together via
// SetGenerator before Open, since the backend and the generator are
// mutually referential (the generator calls the backend for volume/tone
// bookkeeping; the backend's audio callback calls the generator to fill
// fragments).
func NewPCM() *PCM {
	return &PCM{}
}

// SetGenerator attaches the Generator whose FillFragment supplies audio
// samples to the playback callback.
func (p *PCM) SetGenerator(gen *Generator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen = gen
}

// Open initializes the malgo context and starts a playback device at
// SampleRateHz, mono, 16-bit signed, with FragmentSamples-sized periods
// (spec.md §4.4: "fragment size is negotiated small, ~128 samples, to
// obtain fine-grained scheduling").
func (p *PCM) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return fmt.Errorf("sound: pcm backend already open")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("sound: init audio context: %w", err)
	}
	p.ctx = ctx

	devCfg := malgo.DeviceConfig{
		DeviceType:         malgo.Playback,
		SampleRate:         SampleRateHz,
		PeriodSizeInFrames: FragmentSamples,
		Playback: malgo.SubConfig{
			Format:   malgo.FormatS16,
			Channels: 1,
		},
	}

	onSendFrames := func(outputSamples, _ []byte, frameCount uint32) {
		if p.gen == nil {
			return
		}
		buf := make([]int16, frameCount)
		p.gen.FillFragment(buf)
		for i, s := range buf {
			outputSamples[2*i] = byte(s)
			outputSamples[2*i+1] = byte(s >> 8)
		}
	}

	dev, err := malgo.InitDevice(ctx.Context, devCfg, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		p.ctx = nil
		return fmt.Errorf("sound: init playback device: %w", err)
	}
	p.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		p.dev = nil
		_ = ctx.Uninit()
		ctx.Free()
		p.ctx = nil
		return fmt.Errorf("sound: start playback device: %w", err)
	}

	return nil
}

// SetTone is a no-op for PCM: the Generator already tracks the target
// frequency and applies it on the next fragment (spec.md §4.4: "Frequency
// changes take effect on the next fragment"); this method exists only to
// satisfy Backend.
func (p *PCM) SetTone(freqHz int) error {
	return nil
}

// Close stops the device and releases the context.
func (p *PCM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev != nil {
		_ = p.dev.Stop()
		p.dev.Uninit()
		p.dev = nil
	}
	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("sound: uninit audio context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}
	return nil
}
