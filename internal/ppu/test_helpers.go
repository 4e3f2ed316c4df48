package ppu

// Test helper methods for PPU testing

// SetFrameBufferForTesting sets a frame buffer (NES palette indices) for testing purposes
func (p *PPU) SetFrameBufferForTesting(frameBuffer [256 * 240]uint8) {
	p.frameBuffer = frameBuffer
}