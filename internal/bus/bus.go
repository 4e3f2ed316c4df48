// Package bus implements the system bus for communication between NES components.
package bus

import (
	"nesgo/internal/apu"
	"nesgo/internal/cartridge"
	"nesgo/internal/cpu"
	"nesgo/internal/input"
	"nesgo/internal/memory"
	"nesgo/internal/ppu"
)

// Bus connects all NES components together
type Bus struct {
	// Core components
	CPU    *cpu.CPU
	PPU    *ppu.PPU
	APU    *apu.APU
	Memory *memory.Memory
	Input  *input.InputState

	// System state
	totalCycles uint64
	cpuCycles   uint64
	ppuCycles   uint64
	frameCount  uint64

	// Timing coordination
	dmaSuspendCycles uint64
	dmaCyclesElapsed uint64
	dmaSourcePage    uint8
	dmaInProgress    bool
	nmiPending       bool

	// Frame timing (NTSC: 262 scanlines, 341 PPU cycles/scanline)
	cyclesPerFrame uint64 // 89342 PPU cycles = 29780.67 CPU cycles
	oddFrame       bool

	// Execution log, for tests asserting CPU/PPU cycle synchronization
	executionLog   []BusExecutionEvent
	loggingEnabled bool
}

// New creates a new system bus with all components
func New() *Bus {
	bus := &Bus{
		PPU:   ppu.New(),
		APU:   apu.New(),
		Input: input.NewInputState(),

		cyclesPerFrame: 89342,
	}

	bus.Memory = memory.New(bus.PPU, bus.APU, nil) // Cartridge is set later via LoadCartridge
	bus.Memory.SetInputSystem(bus.Input)
	bus.CPU = cpu.New(bus.Memory)

	bus.PPU.SetNMICallback(bus.triggerNMI)
	bus.PPU.SetFrameCompleteCallback(bus.handleFrameComplete)
	bus.Memory.SetDMACallback(bus.TriggerOAMDMA)
	bus.APU.SetDMAReader(bus.Memory.Read)

	bus.Reset()

	return bus
}

// Reset resets all components to their initial state
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.Input.Reset()

	b.totalCycles = 0
	b.cpuCycles = 0
	b.ppuCycles = 0
	b.frameCount = 0
	b.dmaSuspendCycles = 0
	b.dmaCyclesElapsed = 0
	b.dmaInProgress = false
	b.nmiPending = false
	b.oddFrame = false

	b.PPU.SetFrameCount(0)

	b.executionLog = make([]BusExecutionEvent, 0)
	b.loggingEnabled = false
}

// triggerNMI is called by the PPU when an NMI should be triggered
func (b *Bus) triggerNMI() {
	b.nmiPending = true
}

// handleFrameComplete is called by the PPU when a frame is naturally completed
func (b *Bus) handleFrameComplete() {
	b.frameCount = b.PPU.GetFrameCount()
}

// tick advances the PPU (3x) and APU (1x) by the given number of CPU cycles.
// Called both for ordinary instruction execution and for DMA-suspended
// cycles, so PPU/APU state advances even while the CPU itself is stalled.
func (b *Bus) tick(cpuCycles uint64) {
	for i := uint64(0); i < cpuCycles*3; i++ {
		b.PPU.Step()
		b.ppuCycles++
	}
	for i := uint64(0); i < cpuCycles; i++ {
		b.APU.Step()
	}
	b.CPU.SetIRQ(b.APU.IRQLine())
	b.cpuCycles += cpuCycles
	b.totalCycles += cpuCycles
}

// Step executes one CPU instruction (or one DMA-suspended cycle) and
// advances the PPU/APU accordingly.
func (b *Bus) Step() {
	preFrameCount := b.frameCount
	prePC := b.CPU.PC
	var preOpcode uint8
	if b.Memory != nil {
		preOpcode = b.Memory.Read(prePC)
	}

	if b.dmaSuspendCycles > 0 {
		b.stepOAMDMACycle()
		b.tick(1)
	} else {
		if b.nmiPending {
			b.CPU.TriggerNMI()
			b.nmiPending = false
		}

		cpuCycles := b.CPU.Step()
		b.tick(cpuCycles)
	}

	if b.loggingEnabled {
		b.executionLog = append(b.executionLog, BusExecutionEvent{
			StepNumber:    len(b.executionLog) + 1,
			CPUCycles:     b.cpuCycles,
			PPUCycles:     b.ppuCycles,
			FrameCount:    b.frameCount,
			DMAActive:     b.dmaInProgress,
			NMIProcessed:  b.frameCount > preFrameCount,
			PCValue:       prePC,
			InstructionOp: preOpcode,
		})
	}
}

// stepOAMDMACycle consumes one cycle of an in-progress OAM DMA transfer.
// The first cycle (plus an extra alignment cycle on an odd CPU cycle) is a
// dummy read; each following pair of cycles performs one byte's read/write.
func (b *Bus) stepOAMDMACycle() {
	alignCycles := b.dmaSuspendCycles + b.dmaCyclesElapsed - 512
	if b.dmaCyclesElapsed >= alignCycles {
		pairIndex := b.dmaCyclesElapsed - alignCycles
		if pairIndex%2 == 1 {
			byteIndex := uint8(pairIndex / 2)
			sourceAddress := uint16(b.dmaSourcePage)<<8 + uint16(byteIndex)
			data := b.Memory.Read(sourceAddress)
			b.PPU.WriteOAM(byteIndex, data)
		}
	}

	b.dmaCyclesElapsed++
	b.dmaSuspendCycles--
	if b.dmaSuspendCycles == 0 {
		b.dmaInProgress = false
		b.dmaCyclesElapsed = 0
	}
}

// TriggerOAMDMA initiates an OAM DMA transfer ($4014). The 256-byte copy is
// interleaved across the 513/514 suspended CPU cycles in Step/stepOAMDMACycle
// rather than performed synchronously, so PPU/APU state visibly advances
// during the transfer exactly as on real hardware.
func (b *Bus) TriggerOAMDMA(sourcePage uint8) {
	if b.dmaInProgress {
		return
	}

	dmaCycles := uint64(513)
	if b.cpuCycles%2 == 1 {
		dmaCycles = 514
	}

	b.dmaInProgress = true
	b.dmaSuspendCycles = dmaCycles
	b.dmaCyclesElapsed = 0
	b.dmaSourcePage = sourcePage
}

// LoadCartridge loads a cartridge into the system
func (b *Bus) LoadCartridge(cart memory.CartridgeInterface) {
	b.Memory = memory.New(b.PPU, b.APU, cart)
	b.Memory.SetInputSystem(b.Input)
	b.CPU = cpu.New(b.Memory)

	ppuMemory := memory.NewPPUMemory(cart)
	b.PPU.SetMemory(ppuMemory)

	b.PPU.SetNMICallback(b.triggerNMI)
	b.Memory.SetDMACallback(b.TriggerOAMDMA)
	b.APU.SetDMAReader(b.Memory.Read)

	if cart, ok := cart.(*cartridge.Cartridge); ok {
		b.APU.SetIRQSource(cart.IRQActive)
	}

	b.CPU.Reset()
}

// Run runs the emulator for a specified number of frames
func (b *Bus) Run(frames int) {
	targetFrames := b.frameCount + uint64(frames)
	for b.frameCount < targetFrames {
		b.Step()
	}
}

// RunCycles runs the emulator for a specified number of CPU cycles
func (b *Bus) RunCycles(cycles uint64) {
	targetCycles := b.cpuCycles + cycles
	for b.cpuCycles < targetCycles {
		b.Step()
	}
}

// Frame executes one complete frame worth of cycles
func (b *Bus) Frame() {
	targetCycles := b.cpuCycles + 29781
	for b.cpuCycles < targetCycles {
		b.Step()
	}
}

// GetFrameRate returns the current frame rate based on NTSC timing
func (b *Bus) GetFrameRate() float64 {
	cpuFrequency := 1789773.0
	cpuCyclesPerFrame := cpuFrequency / 60.098803
	return cpuFrequency / cpuCyclesPerFrame
}

// DrainFrame returns the current PPU frame buffer as 256x240 NES palette
// indices (0-63 per pixel). The host polls this once per frame-complete
// signal rather than the core pushing frames through a callback, matching
// the polling contract the host boundary is built around. Resolving indices
// to RGB against the 64-entry NES palette is the host's job, not the core's.
func (b *Bus) DrainFrame() []uint8 {
	frameBuffer := b.PPU.GetFrameBuffer()
	return frameBuffer[:]
}

// DrainAudio returns the audio samples accumulated by the APU since the last
// drain. The APU downsamples internally to its configured sample rate (44100 Hz
// unless changed with SetAudioSampleRate); samples are not delivered at the
// CPU clock rate.
func (b *Bus) DrainAudio() []float32 {
	return b.APU.GetSamples()
}

// SetAudioSampleRate sets the target audio sample rate for the APU
func (b *Bus) SetAudioSampleRate(rate int) {
	b.APU.SetSampleRate(rate)
}

// GetCycleCount returns the current CPU cycle count
func (b *Bus) GetCycleCount() uint64 {
	return b.cpuCycles
}

// GetFrameCount returns the current frame count
func (b *Bus) GetFrameCount() uint64 {
	return b.frameCount
}

// IsDMAInProgress returns whether DMA is currently in progress
func (b *Bus) IsDMAInProgress() bool {
	return b.dmaInProgress
}

// isRenderingEnabled checks if PPU rendering is enabled
func (b *Bus) isRenderingEnabled() bool {
	mask := b.PPU.ReadRegister(0x2001)
	return (mask & 0x18) != 0
}

// SetControllerButton sets the state of a controller button
func (b *Bus) SetControllerButton(controller int, button input.Button, pressed bool) {
	switch controller {
	case 0, 1:
		b.Input.Controller1.SetButton(button, pressed)
	case 2:
		b.Input.Controller2.SetButton(button, pressed)
	}
}

// SetControllerButtons sets all button states for a controller at once
func (b *Bus) SetControllerButtons(controller int, buttons [8]bool) {
	switch controller {
	case 0, 1:
		b.Input.SetButtons1(buttons)
	case 2:
		b.Input.SetButtons2(buttons)
	}
}

// GetInputState returns the input state for direct access
func (b *Bus) GetInputState() *input.InputState {
	return b.Input
}

// GetCPUState returns the current CPU state for testing
func (b *Bus) GetCPUState() CPUState {
	return CPUState{
		PC:     b.CPU.PC,
		A:      b.CPU.A,
		X:      b.CPU.X,
		Y:      b.CPU.Y,
		SP:     b.CPU.SP,
		Cycles: b.cpuCycles,
		Flags: CPUFlags{
			N: b.CPU.N,
			V: b.CPU.V,
			B: b.CPU.B,
			D: b.CPU.D,
			I: b.CPU.I,
			Z: b.CPU.Z,
			C: b.CPU.C,
		},
	}
}

// CPUState represents CPU state snapshot for testing
type CPUState struct {
	PC      uint16
	A, X, Y uint8
	SP      uint8
	Cycles  uint64
	Flags   CPUFlags
}

// CPUFlags represents CPU status flags for testing
type CPUFlags struct {
	N, V, B, D, I, Z, C bool
}

// GetPPUState returns the current PPU state for testing
func (b *Bus) GetPPUState() PPUState {
	scanline := int((b.ppuCycles % b.cyclesPerFrame) / 341)
	cycle := int((b.ppuCycles % b.cyclesPerFrame) % 341)

	return PPUState{
		Scanline:    scanline,
		Cycle:       cycle,
		FrameCount:  b.frameCount,
		VBlankFlag:  (b.PPU.ReadRegister(0x2002) & 0x80) != 0,
		RenderingOn: b.isRenderingEnabled(),
		NMIEnabled:  true,
	}
}

// PPUState represents PPU state snapshot for testing
type PPUState struct {
	Scanline    int
	Cycle       int
	FrameCount  uint64
	VBlankFlag  bool
	RenderingOn bool
	NMIEnabled  bool
}

// BusExecutionEvent records the bus state around a single Step call, for
// tests asserting that the CPU and PPU stay cycle-synchronized.
type BusExecutionEvent struct {
	StepNumber    int
	CPUCycles     uint64
	PPUCycles     uint64
	FrameCount    uint64
	DMAActive     bool
	NMIProcessed  bool
	PCValue       uint16
	InstructionOp uint8
}

// EnableExecutionLogging turns on per-Step execution history recording.
func (b *Bus) EnableExecutionLogging() {
	b.loggingEnabled = true
}

// DisableExecutionLogging turns off per-Step execution history recording.
func (b *Bus) DisableExecutionLogging() {
	b.loggingEnabled = false
}

// ClearExecutionLog discards any recorded execution history.
func (b *Bus) ClearExecutionLog() {
	b.executionLog = make([]BusExecutionEvent, 0)
}

// GetExecutionLog returns the recorded execution history.
func (b *Bus) GetExecutionLog() []BusExecutionEvent {
	return b.executionLog
}
