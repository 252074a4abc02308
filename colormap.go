package ndvi

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gen2brain/jpegli"
)

// PaletteSize is the number of colors in a palette. Index zero is reserved
// for the background.
const PaletteSize = 255

//go:embed cmap.txt
var defaultPaletteData []byte

// DefaultPalette returns the embedded NDVI palette.
var DefaultPalette = sync.OnceValues(func() (Palette, error) {
	return LoadPalette(bytes.NewReader(defaultPaletteData))
})

// A Palette maps indices 1 to 255 to colors.
type Palette [PaletteSize]color.RGBA

// LoadPalette reads a palette from r. Lines starting with # are ignored, the
// first remaining line is a header, and every other line is a red, green, and
// blue triplet.
func LoadPalette(r io.Reader) (Palette, error) {
	var palette Palette
	scanner := bufio.NewScanner(r)
	header := true
	count := 0
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if header {
			header = false
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return Palette{}, fmt.Errorf("%d: %w: expected 3 values, got %d", lineNumber, errParse, len(fields))
		}
		if count == PaletteSize {
			return Palette{}, fmt.Errorf("%d: %w: more than %d colors", lineNumber, errParse, PaletteSize)
		}
		var rgb [3]uint8
		for i, field := range fields {
			value, err := strconv.ParseUint(field, 10, 8)
			if err != nil {
				return Palette{}, fmt.Errorf("%d: %w: %w", lineNumber, errParse, err)
			}
			rgb[i] = uint8(value)
		}
		palette[count] = color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}
		count++
	}
	if err := scanner.Err(); err != nil {
		return Palette{}, err
	}
	if count != PaletteSize {
		return Palette{}, fmt.Errorf("%w: got %d colors, want %d", errParse, count, PaletteSize)
	}
	return palette, nil
}

// ColorPalette returns p as a color.Palette with black at index zero.
func (p *Palette) ColorPalette() color.Palette {
	colorPalette := make(color.Palette, 0, PaletteSize+1)
	colorPalette = append(colorPalette, color.RGBA{A: 0xff})
	for _, c := range p {
		colorPalette = append(colorPalette, c)
	}
	return colorPalette
}

// Image returns indexGrid as an RGBA image colored with p.
func (p *Palette) Image(indexGrid *IndexGrid) *image.RGBA {
	rect := image.Rect(0, 0, indexGrid.Width, indexGrid.Height)
	paletted := &image.Paletted{
		Pix:     indexGrid.Pix,
		Stride:  indexGrid.Width,
		Rect:    rect,
		Palette: p.ColorPalette(),
	}
	rgba := image.NewRGBA(rect)
	draw.Draw(rgba, rect, paletted, image.Point{}, draw.Src)
	return rgba
}

// EncodeJPEG writes indexGrid colored with p to w as a maximum quality JPEG
// without chroma subsampling.
func (p *Palette) EncodeJPEG(w io.Writer, indexGrid *IndexGrid) error {
	return jpegli.Encode(w, p.Image(indexGrid), &jpegli.EncodingOptions{
		Quality:           100,
		ChromaSubsampling: image.YCbCrSubsampleRatio444,
	})
}

// Render returns indexGrid colored with p as a base64-encoded JPEG.
func (p *Palette) Render(indexGrid *IndexGrid) (string, error) {
	if indexGrid.Width <= 0 || indexGrid.Height <= 0 || len(indexGrid.Pix) != indexGrid.Width*indexGrid.Height {
		return "", fmt.Errorf("%w: invalid %dx%d index grid", ErrComputation, indexGrid.Width, indexGrid.Height)
	}
	var buffer bytes.Buffer
	if err := p.EncodeJPEG(&buffer, indexGrid); err != nil {
		return "", fmt.Errorf("%w: %w", ErrComputation, err)
	}
	return base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}
