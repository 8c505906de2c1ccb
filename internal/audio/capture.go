package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicrophoneSource captures PCM16LE mono frames from the default input device.
// Acquisition failure (no device, OS permission denied) surfaces from the
// constructor so callers can abort before opening any network connection.
type MicrophoneSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	rate   int

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func NewMicrophoneSource(sampleRate int) (*MicrophoneSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid capture sample rate %d", sampleRate)
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("audio context init: %w", err)
	}

	m := &MicrophoneSource{ctx: ctx, rate: sampleRate}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, input...)
				m.cond.Signal()
			}
			m.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture device init: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("capture device start: %w", err)
	}

	m.device = device
	return m, nil
}

// ReadFrame blocks until captured audio is available and returns everything
// buffered so far. Returns io.EOF after Close.
func (m *MicrophoneSource) ReadFrame() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return nil, io.EOF
	}
	frame := m.buf
	m.buf = nil
	return frame, nil
}

func (m *MicrophoneSource) SampleRate() int { return m.rate }

func (m *MicrophoneSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	m.device.Uninit()
	_ = m.ctx.Uninit()
	m.ctx.Free()
	return nil
}
