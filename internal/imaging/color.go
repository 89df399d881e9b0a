package imaging

import (
	"fmt"
	"hash/fnv"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/cellcount-mcp/internal/classes"
)

// classPalette holds the overlay colour of each known class as "#RRGGBB".
var classPalette = map[classes.Class]string{
	classes.RBC:       "#FF3838",
	classes.WBC:       "#3D7DFF",
	classes.Platelets: "#FFB21D",
}

// ClassColor returns the overlay colour for a detection.
//
// Known classes use a fixed palette. Unrecognized labels get a colour derived
// from the label text, so the same unknown label is drawn the same way across
// images.
func ClassColor(class classes.Class, label string) color.RGBA {
	if hex, ok := classPalette[class]; ok {
		c, err := parseHexColor(hex)
		if err == nil {
			return c
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	hue := float64(h.Sum32()%360) + 0.5
	r, g, b := colorful.Hcl(hue, 0.6, 0.65).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// TextColor returns black or white, whichever reads better on background bg.
func TextColor(bg color.RGBA) color.RGBA {
	c, _ := colorful.MakeColor(color.RGBA{R: bg.R, G: bg.G, B: bg.B, A: 255})
	l, _, _ := c.Lab()
	if l > 0.6 {
		return color.RGBA{0, 0, 0, 255}
	}
	return color.RGBA{255, 255, 255, 255}
}

// parseHexColor parses a hex color string like "#FF0000".
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] != '#' {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
