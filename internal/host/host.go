// Package host wires the emulator core to an Ebitengine window: frame
// presentation, audio output and keyboard-to-controller input.
package host

import (
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"nesgo/internal/bus"
	"nesgo/internal/input"
)

const (
	nesWidth   = 256
	nesHeight  = 240
	sampleRate = 44100
)

// Game implements ebiten.Game, driving the system bus one frame per Update
// and presenting its frame buffer and audio samples each tick.
type Game struct {
	bus *bus.Bus

	frameImage  *ebiten.Image
	imageBuffer *image.RGBA

	audioContext *audio.Context
	audioPlayer  *audio.Player
	audioStream  *sampleStream

	windowWidth  int
	windowHeight int
}

// NewGame creates a host Game wrapping an already-loaded system bus.
func NewGame(b *bus.Bus) *Game {
	b.SetAudioSampleRate(sampleRate)

	g := &Game{
		bus:          b,
		frameImage:   ebiten.NewImage(nesWidth, nesHeight),
		imageBuffer:  image.NewRGBA(image.Rect(0, 0, nesWidth, nesHeight)),
		windowWidth:  nesWidth * 3,
		windowHeight: nesHeight * 3,
	}

	g.audioContext = audio.NewContext(sampleRate)
	g.audioStream = newSampleStream(b)
	player, err := g.audioContext.NewPlayer(g.audioStream)
	if err == nil {
		player.Play()
		g.audioPlayer = player
	}

	return g
}

// Update advances the emulator by one frame and samples keyboard input.
func (g *Game) Update() error {
	g.processInput()
	g.bus.Frame()
	return nil
}

// Draw resolves the bus's indexed frame buffer against the NES palette and
// copies the resulting RGB image onto the screen, scaled to fit.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{A: 255})

	frameBuffer := g.bus.DrainFrame()
	pix := g.imageBuffer.Pix
	for i := 0; i < nesWidth*nesHeight; i++ {
		rgb := nesColorToRGB(frameBuffer[i])
		pix[i*4+0] = uint8(rgb >> 16)
		pix[i*4+1] = uint8(rgb >> 8)
		pix[i*4+2] = uint8(rgb)
		pix[i*4+3] = 255
	}
	g.frameImage.WritePixels(pix)

	scaleX := float64(g.windowWidth) / float64(nesWidth)
	scaleY := float64(g.windowHeight) / float64(nesHeight)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	offsetX := (float64(g.windowWidth) - float64(nesWidth)*scale) / 2
	offsetY := (float64(g.windowHeight) - float64(nesHeight)*scale) / 2

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(g.frameImage, op)
}

// Layout reports the window size Update/Draw should target.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.windowWidth = outsideWidth
	g.windowHeight = outsideHeight
	return outsideWidth, outsideHeight
}

// keyMappings maps Ebitengine keys to NES controller buttons, following the
// same dual-scheme (arrows/WASD + J/K for A/B) layout the teacher used.
var keyMappings = map[ebiten.Key]input.Button{
	ebiten.KeyArrowUp:    input.ButtonUp,
	ebiten.KeyArrowDown:  input.ButtonDown,
	ebiten.KeyArrowLeft:  input.ButtonLeft,
	ebiten.KeyArrowRight: input.ButtonRight,
	ebiten.KeyW:          input.ButtonUp,
	ebiten.KeyS:          input.ButtonDown,
	ebiten.KeyA:          input.ButtonLeft,
	ebiten.KeyD:          input.ButtonRight,
	ebiten.KeyJ:          input.ButtonA,
	ebiten.KeyK:          input.ButtonB,
	ebiten.KeyEnter:      input.ButtonStart,
	ebiten.KeySpace:      input.ButtonSelect,
}

// processInput reads the current keyboard state and forwards button
// transitions to controller 1.
func (g *Game) processInput() {
	for ebitenKey, button := range keyMappings {
		if inpututil.IsKeyJustPressed(ebitenKey) {
			g.bus.SetControllerButton(1, button, true)
		} else if inpututil.IsKeyJustReleased(ebitenKey) {
			g.bus.SetControllerButton(1, button, false)
		}
	}
}

// sampleStream adapts the APU's float32 sample buffer to the io.Reader
// Ebitengine's audio package expects (16-bit little-endian stereo PCM).
type sampleStream struct {
	bus    *bus.Bus
	pcm    []byte
	offset int
}

func newSampleStream(b *bus.Bus) *sampleStream {
	return &sampleStream{bus: b}
}

// Read fills p with PCM bytes, pulling fresh samples from the APU once the
// buffered PCM is exhausted. Returns silence instead of blocking if the APU
// hasn't produced enough samples yet, since Ebitengine reads on its own timer
// independent of Update.
func (s *sampleStream) Read(p []byte) (int, error) {
	if s.offset >= len(s.pcm) {
		s.refill()
	}

	n := copy(p, s.pcm[s.offset:])
	s.offset += n
	if n < len(p) {
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		n = len(p)
	}
	return n, nil
}

func (s *sampleStream) refill() {
	s.pcm = samplesToPCM(s.bus.DrainAudio())
	s.offset = 0
}

// samplesToPCM converts mono float32 samples in [-1, 1] to 16-bit
// little-endian stereo PCM, duplicating each sample to both channels.
func samplesToPCM(samples []float32) []byte {
	pcm := make([]byte, len(samples)*4) // 2 bytes/sample * 2 channels
	for i, sample := range samples {
		v := int16(sample * 32767)
		lo := byte(v)
		hi := byte(v >> 8)
		pcm[i*4+0] = lo
		pcm[i*4+1] = hi
		pcm[i*4+2] = lo
		pcm[i*4+3] = hi
	}
	return pcm
}

// nesColorPalette is the 2C02 NTSC palette (64 entries, 0x00RRGGBB). The core
// only ever hands out indices into this table; the RGB values themselves are
// a display concern and live here rather than in internal/ppu.
var nesColorPalette = [64]uint32{
	// Row 0 (0x00-0x0F)
	0xFF666666, 0xFF002A88, 0xFF1412A7, 0xFF3B00A4, 0xFF5C007E, 0xFF6E0040, 0xFF6C0600, 0xFF561D00,
	0xFF333500, 0xFF0B4800, 0xFF005200, 0xFF004F08, 0xFF00404D, 0xFF000000, 0xFF000000, 0xFF000000,
	// Row 1 (0x10-0x1F)
	0xFFADADAD, 0xFF155FD9, 0xFF4240FF, 0xFF7527FE, 0xFFA01ACC, 0xFFB71E7B, 0xFFB53120, 0xFF994E00,
	0xFF6B6D00, 0xFF388700, 0xFF0C9300, 0xFF008F32, 0xFF007C8D, 0xFF000000, 0xFF000000, 0xFF000000,
	// Row 2 (0x20-0x2F)
	0xFFFFFEFF, 0xFF64B0FF, 0xFF9290FF, 0xFFC676FF, 0xFFF36AFF, 0xFFFE6ECC, 0xFFFE8170, 0xFFEA9E22,
	0xFFBCBE00, 0xFF88D800, 0xFF5CE430, 0xFF45E082, 0xFF48CDDE, 0xFF4F4F4F, 0xFF000000, 0xFF000000,
	// Row 3 (0x30-0x3F)
	0xFFFFFEFF, 0xFFC0DFFF, 0xFFD3D2FF, 0xFFE8C8FF, 0xFFFBC2FF, 0xFFFEC4EA, 0xFFFECCC5, 0xFFF7D8A5,
	0xFFE4E594, 0xFFCFF29B, 0xFFBEFBB3, 0xFFB8F8D8, 0xFFB8F8F8, 0xFF000000, 0xFF000000, 0xFF000000,
}

// nesColorToRGB converts a NES palette index to an 0x00RRGGBB RGB value.
func nesColorToRGB(colorIndex uint8) uint32 {
	if int(colorIndex) >= len(nesColorPalette) {
		return 0x000000
	}
	return nesColorPalette[colorIndex] & 0x00FFFFFF
}

// Run starts the Ebitengine main loop, blocking until the window closes.
func Run(g *Game, title string, scale int) error {
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(nesWidth*scale, nesHeight*scale)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(g); err != nil {
		return fmt.Errorf("run game: %w", err)
	}
	return nil
}
