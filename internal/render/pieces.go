package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 grid. Used when no piece directory is configured.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5"/>` +
		`<path d="M16 36 L18 23 L27 23 L29 36 Z"/>` +
		`<rect x="11" y="35" width="23" height="5" rx="1.5"/>`,
	nchess.Rook: `<path d="M11 15 L11 9 L15 9 L15 11 L20 11 L20 9 L25 9 L25 11 L30 11 L30 9 L34 9 L34 15 Z"/>` +
		`<rect x="14" y="15" width="17" height="18"/>` +
		`<rect x="10" y="33" width="25" height="7" rx="1.5"/>`,
	nchess.Knight: `<path d="M14 39 L31 39 L30 22 C30 14 25 8 20 7 L19 10 L15 12 L10 21 L12 24 L17 21 L21 20 C18 25 14 30 14 39 Z"/>`,
	nchess.Bishop: `<ellipse cx="22.5" cy="22" rx="7" ry="10"/>` +
		`<circle cx="22.5" cy="9" r="3"/>` +
		`<rect x="12" y="34" width="21" height="6" rx="1.5"/>`,
	nchess.Queen: `<path d="M9 15 L13 31 L32 31 L36 15 L29 25 L22.5 11 L16 25 Z"/>` +
		`<rect x="11" y="32" width="23" height="7" rx="1.5"/>` +
		`<circle cx="9" cy="13" r="2.5"/><circle cx="22.5" cy="9" r="2.5"/><circle cx="36" cy="13" r="2.5"/>`,
	nchess.King: `<path d="M21 4 L24 4 L24 8 L27 8 L27 11 L24 11 L24 15 L21 15 L21 11 L18 11 L18 8 L21 8 Z"/>` +
		`<path d="M11 24 C11 17 34 17 34 24 L31 33 L14 33 Z"/>` +
		`<rect x="11" y="33" width="23" height="6" rx="1.5"/>`,
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

type pieceSet struct {
	dir string

	mu    sync.RWMutex
	cache map[pieceCacheKey]image.Image
}

func newPieceSet(dir string) *pieceSet {
	return &pieceSet{dir: dir, cache: map[pieceCacheKey]image.Image{}}
}

func (ps *pieceSet) image(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	ps.mu.RLock()
	if img, ok := ps.cache[key]; ok {
		ps.mu.RUnlock()
		return img, nil
	}
	ps.mu.RUnlock()

	data, err := ps.source(piece)
	if err != nil {
		return nil, err
	}
	img, err := rasterizeSVG(data, size)
	if err != nil {
		return nil, fmt.Errorf("piece %s: %w", pieceAssetName(piece), err)
	}

	ps.mu.Lock()
	ps.cache[key] = img
	ps.mu.Unlock()
	return img, nil
}

// source returns the SVG for piece: the file from dir when configured,
// otherwise the built-in outline.
func (ps *pieceSet) source(piece nchess.Piece) ([]byte, error) {
	if ps.dir != "" {
		name := filepath.Join(ps.dir, pieceAssetName(piece))
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read piece asset %s: %w", name, err)
		}
		return data, nil
	}
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return nil, fmt.Errorf("no shape for piece type %v", piece.Type())
	}
	fill, stroke := "#f8f8f4", "#1c1c1c"
	if piece.Color() == nchess.Black {
		fill, stroke = "#262626", "#0a0a0a"
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45">`+
		`<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">%s</g></svg>`,
		fill, stroke, shape)
	return []byte(svg), nil
}

func rasterizeSVG(data []byte, size int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

// pieceAssetName follows the wK.svg / bP.svg naming of common piece sets.
func pieceAssetName(piece nchess.Piece) string {
	prefix := "w"
	if piece.Color() == nchess.Black {
		prefix = "b"
	}

	var suffix string
	switch piece.Type() {
	case nchess.King:
		suffix = "K"
	case nchess.Queen:
		suffix = "Q"
	case nchess.Rook:
		suffix = "R"
	case nchess.Bishop:
		suffix = "B"
	case nchess.Knight:
		suffix = "N"
	case nchess.Pawn:
		suffix = "P"
	}
	return prefix + suffix + ".svg"
}

// svgFixups rewrites colour declarations oksvg cannot parse, as exported by
// some editors.
var svgFixups = strings.NewReplacer(
	"fill:000000", "fill:#000000",
	"fill: 000000", "fill:#000000",
	"stroke: 000000", "stroke:#000000",
	"fill: #", "fill:#",
	"stroke: #", "stroke:#",
	"stop-color: #", "stop-color:#",
)

func sanitizeSVG(svg []byte) []byte {
	return []byte(svgFixups.Replace(string(svg)))
}
