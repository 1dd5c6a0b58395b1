package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// canvas wraps the output image with alpha-blended drawing helpers.
type canvas struct {
	img  *image.RGBA
	face font.Face
}

func newCanvas(w, h int) *canvas {
	return &canvas{
		img:  image.NewRGBA(image.Rect(0, 0, w, h)),
		face: basicfont.Face7x13,
	}
}

func (c *canvas) fill(r image.Rectangle, clr color.Color) {
	draw.Draw(c.img, r, image.NewUniform(clr), image.Point{}, draw.Over)
}

func (c *canvas) paint(r image.Rectangle, clr color.Color) {
	draw.Draw(c.img, r, image.NewUniform(clr), image.Point{}, draw.Src)
}

func (c *canvas) over(r image.Rectangle, src image.Image) {
	draw.Draw(c.img, r, src, src.Bounds().Min, draw.Over)
}

func (c *canvas) blend(x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(c.img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := c.img.RGBAAt(x, y)
	inv := 65535 - sa
	// premultiplied source over premultiplied destination
	c.img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/65535) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/65535) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/65535) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/65535) >> 8),
	})
}

func (c *canvas) disc(center image.Point, radius int, clr color.Color) {
	c.ring(center, radius, 0, clr)
}

// ring fills the annulus between inner and outer radius. inner 0 is a disc.
func (c *canvas) ring(center image.Point, outer, inner int, clr color.Color) {
	if outer <= 0 {
		c.blend(center.X, center.Y, clr)
		return
	}
	o2, i2 := outer*outer, inner*inner
	for y := -outer; y <= outer; y++ {
		for x := -outer; x <= outer; x++ {
			d := x*x + y*y
			if d > o2 || (inner > 0 && d < i2) {
				continue
			}
			c.blend(center.X+x, center.Y+y, clr)
		}
	}
}

// panel is a rounded rectangle.
func (c *canvas) panel(r image.Rectangle, radius int, clr color.Color) {
	if r.Empty() {
		return
	}
	radius = max(0, min(radius, r.Dx()/2, r.Dy()/2))
	if radius == 0 {
		c.fill(r, clr)
		return
	}
	c.fill(image.Rect(r.Min.X+radius, r.Min.Y, r.Max.X-radius, r.Max.Y), clr)
	c.fill(image.Rect(r.Min.X, r.Min.Y+radius, r.Min.X+radius, r.Max.Y-radius), clr)
	c.fill(image.Rect(r.Max.X-radius, r.Min.Y+radius, r.Max.X, r.Max.Y-radius), clr)
	corners := []image.Point{
		{r.Min.X + radius, r.Min.Y + radius},
		{r.Max.X - radius - 1, r.Min.Y + radius},
		{r.Min.X + radius, r.Max.Y - radius - 1},
		{r.Max.X - radius - 1, r.Max.Y - radius - 1},
	}
	for _, p := range corners {
		c.quarter(p, radius, r, clr)
	}
}

// quarter paints the part of a corner disc that lies outside the already
// filled cross so that overlapping alpha is not applied twice.
func (c *canvas) quarter(center image.Point, radius int, bounds image.Rectangle, clr color.Color) {
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			p := image.Pt(center.X+x, center.Y+y)
			if x*x+y*y > r2 || !p.In(bounds) || inCross(p, bounds, radius) {
				continue
			}
			c.blend(p.X, p.Y, clr)
		}
	}
}

func inCross(p image.Point, r image.Rectangle, radius int) bool {
	if p.X >= r.Min.X+radius && p.X < r.Max.X-radius {
		return true
	}
	return p.Y >= r.Min.Y+radius && p.Y < r.Max.Y-radius
}

type pointF struct{ X, Y float64 }

func (c *canvas) triangle(a, b, d pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, d.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, d.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, d.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, d.Y))))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if inTriangle(float64(x)+0.5, float64(y)+0.5, a, b, d) {
				c.blend(x, y, clr)
			}
		}
	}
}

// quad splits into two triangles sharing the p0-p2 diagonal. Pixels on the
// diagonal belong to the first triangle only.
func (c *canvas) quad(p0, p1, p2, p3 pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(math.Min(p0.X, p1.X), math.Min(p2.X, p3.X))))
	maxX := int(math.Ceil(math.Max(math.Max(p0.X, p1.X), math.Max(p2.X, p3.X))))
	minY := int(math.Floor(math.Min(math.Min(p0.Y, p1.Y), math.Min(p2.Y, p3.Y))))
	maxY := int(math.Ceil(math.Max(math.Max(p0.Y, p1.Y), math.Max(p2.Y, p3.Y))))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			if inTriangle(px, py, p0, p1, p2) || inTriangle(px, py, p0, p2, p3) {
				c.blend(x, y, clr)
			}
		}
	}
}

// arrow draws a shaft and head from the centre of one cell to another.
func (c *canvas) arrow(from, to image.Rectangle, clr color.Color) {
	if from == to {
		return
	}
	cell := float64(from.Dx())
	sx, sy := float64(from.Min.X)+cell/2, float64(from.Min.Y)+cell/2
	ex, ey := float64(to.Min.X)+cell/2, float64(to.Min.Y)+cell/2
	dx, dy := ex-sx, ey-sy
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	ux, uy := dx/length, dy/length
	px, py := -uy, ux

	shaft := length - cell*0.45
	if shaft < cell*0.35 {
		shaft = length * 0.6
	}
	half := cell * 0.12
	head := cell * 0.3
	bx, by := sx+ux*shaft, sy+uy*shaft

	c.quad(
		pointF{sx - px*half, sy - py*half},
		pointF{sx + px*half, sy + py*half},
		pointF{bx + px*half, by + py*half},
		pointF{bx - px*half, by - py*half},
		clr,
	)
	c.triangle(
		pointF{ex, ey},
		pointF{bx - px*head, by - py*head},
		pointF{bx + px*head, by + py*head},
		clr,
	)
}

func inTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma >= 0
}

func (c *canvas) textWidth(s string) int {
	return font.MeasureString(c.face, s).Round()
}

// fit shortens s with "..." until it is at most width pixels wide.
func (c *canvas) fit(s string, width int) string {
	s = strings.TrimSpace(s)
	if s == "" || width <= 0 || c.textWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if cand := string(runes) + "..."; c.textWidth(cand) <= width {
			return cand
		}
	}
	return ""
}

// text draws s with its left edge at x and baseline y.
func (c *canvas) text(s string, x, y int, clr color.Color) {
	if s == "" {
		return
	}
	d := &font.Drawer{Dst: c.img, Src: image.NewUniform(clr), Face: c.face, Dot: fixed.P(x, y)}
	d.DrawString(s)
}

// centred draws s centred in r.
func (c *canvas) centred(s string, r image.Rectangle, clr color.Color) {
	s = c.fit(s, r.Dx()-8)
	if s == "" {
		return
	}
	m := c.face.Metrics()
	x := r.Min.X + (r.Dx()-c.textWidth(s))/2
	y := r.Min.Y + (r.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	c.text(s, max(x, r.Min.X), y, clr)
}
