// Package terminal implements the framebuffer text console and command
// line (spec §2 row 10, §6 Framebuffer; SPEC_FULL.md §2.10).
//
// Grounded on the teacher's main/gg_circle_qemu.go (an in-memory
// *gg.Context backbuffer, drawn into, then flushed to the linear
// framebuffer with an RGBA<->BGRX channel swap) and main/framebuffer_text.go
// (cursor/scroll bookkeeping over character rows). Glyph rasterization
// uses golang/freetype the way the teacher's go.mod pulls it in as gg's
// indirect dependency, bound directly to the same backbuffer image gg
// draws into rather than through a second compositing pass.
package terminal

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
)

// Framebuffer renders fixed-size text rows into a linear XRGB8888 buffer
// (spec §6: boot ingest surfaces a linear frame buffer).
type Framebuffer struct {
	width, height, pitch int
	buf                  []byte // XRGB8888, pitch-stride rows; production backs this with the real framebuffer memory, tests with a plain slice

	canvas *gg.Context
	face   *truetype.Font
	ft     *freetype.Context

	charW, charH int
	rows         []string
	maxRows      int
}

// Foreground/background text colors, matching the teacher's
// AnsiBrightGreen-on-MidnightBlue scheme from framebuffer_text.go.
var (
	fgColor = color.RGBA{0x00, 0xFF, 0x66, 0xFF}
	bgColor = color.RGBA{0x10, 0x10, 0x30, 0xFF}
)

// NewFramebuffer builds a Framebuffer over buf (width*height*4 bytes laid
// out with the given pitch) using fontBytes as a TrueType font.
func NewFramebuffer(width, height, pitch int, buf []byte, fontBytes []byte) (*Framebuffer, error) {
	font, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, err
	}

	canvas := gg.NewContext(width, height)
	ft := freetype.NewContext()
	ft.SetDPI(72)
	ft.SetFont(font)
	ft.SetFontSize(14)
	ft.SetClip(canvas.Image().Bounds())
	ft.SetDst(canvas.Image().(*image.RGBA))
	ft.SetSrc(image.NewUniform(fgColor))

	const charW, charH = 8, 18
	fb := &Framebuffer{
		width: width, height: height, pitch: pitch, buf: buf,
		canvas: canvas, face: font, ft: ft,
		charW: charW, charH: charH,
		maxRows: height / charH,
	}
	fb.Clear()
	return fb, nil
}

// Clear fills the backbuffer with the background color and drops all rows.
func (fb *Framebuffer) Clear() {
	fb.canvas.SetColor(bgColor)
	fb.canvas.Clear()
	fb.rows = fb.rows[:0]
	fb.flush()
}

// AppendLine adds line as the new bottom row, scrolling the oldest row off
// the top once the console is full (spec §6; teacher's ScrollScreenUp).
func (fb *Framebuffer) AppendLine(line string) {
	fb.rows = append(fb.rows, line)
	if len(fb.rows) > fb.maxRows {
		fb.rows = fb.rows[len(fb.rows)-fb.maxRows:]
	}
	fb.redraw()
}

func (fb *Framebuffer) redraw() {
	fb.canvas.SetColor(bgColor)
	fb.canvas.Clear()
	fb.ft.SetSrc(image.NewUniform(fgColor))
	for i, line := range fb.rows {
		baseline := (i+1)*fb.charH - 4
		fb.ft.DrawString(line, freetype.Pt(0, baseline))
	}
	fb.flush()
}

// flush converts the RGBA backbuffer into the linear XRGB8888 buffer,
// matching the channel order the teacher's flushGGToFramebuffer uses for
// the Bochs BGRX framebuffer.
func (fb *Framebuffer) flush() {
	if fb.buf == nil {
		return
	}
	im, ok := fb.canvas.Image().(*image.RGBA)
	if !ok {
		return
	}

	width, height, pitch := fb.width, fb.height, fb.pitch
	if width > im.Bounds().Dx() {
		width = im.Bounds().Dx()
	}
	if height > im.Bounds().Dy() {
		height = im.Bounds().Dy()
	}
	if maxBytes := len(fb.buf); pitch > 0 && pitch*height > maxBytes {
		height = maxBytes / pitch
	}
	if width <= 0 || height <= 0 || pitch <= 0 {
		return
	}

	srcPix, srcStride := im.Pix, im.Stride
	for y := 0; y < height; y++ {
		srcRow := srcPix[y*srcStride:]
		dstRow := fb.buf[y*pitch:]
		for x := 0; x < width; x++ {
			si, di := x*4, x*4
			r, g, b := srcRow[si+0], srcRow[si+1], srcRow[si+2]
			dstRow[di+0] = b
			dstRow[di+1] = g
			dstRow[di+2] = r
			dstRow[di+3] = 0x00
		}
	}
}
