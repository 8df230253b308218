package render

import (
	"fmt"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

type fonts struct {
	regular *truetype.Font
	bold    *truetype.Font
}

func loadFonts() (fonts, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return fonts{}, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return fonts{}, fmt.Errorf("parse bold font: %w", err)
	}
	return fonts{regular: regular, bold: bold}, nil
}

// face builds a new face per call; faces cache glyphs and must not be shared
// between concurrent renders. Size is in pixels.
func (f fonts) face(bold bool, size float64) font.Face {
	tt := f.regular
	if bold {
		tt = f.bold
	}
	return truetype.NewFace(tt, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}
