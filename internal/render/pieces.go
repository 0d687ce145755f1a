package render

import (
	"image"
	"strings"
	"sync"

	"github.com/park285/xiangqi-server/internal/xiangqi"
)

type discCacheKey struct {
	side xiangqi.Side
	size int
}

var (
	discCache   = map[discCacheKey]image.Image{}
	discCacheMu sync.RWMutex
)

func renderDisc(side xiangqi.Side, size int) (image.Image, error) {
	key := discCacheKey{side: side, size: size}

	discCacheMu.RLock()
	if img, ok := discCache[key]; ok {
		discCacheMu.RUnlock()
		return img, nil
	}
	discCacheMu.RUnlock()

	ring := blackRing
	if side == xiangqi.Red {
		ring = redRing
	}
	img, err := rasterizeSVG(discSVG(ring), size, size)
	if err != nil {
		return nil, err
	}

	discCacheMu.Lock()
	discCache[key] = img
	discCacheMu.Unlock()
	return img, nil
}

// pieceLabel is the glyph drawn on a disc; the bitmap font has no CJK, so
// Red gets upper case and Black lower case.
func pieceLabel(p xiangqi.Piece) string {
	var l string
	switch p.Kind {
	case xiangqi.General:
		l = "K"
	case xiangqi.Advisor:
		l = "A"
	case xiangqi.Elephant:
		l = "E"
	case xiangqi.Horse:
		l = "H"
	case xiangqi.Chariot:
		l = "R"
	case xiangqi.Cannon:
		l = "C"
	case xiangqi.Soldier:
		l = "P"
	}
	if p.Side == xiangqi.Black {
		return strings.ToLower(l)
	}
	return l
}
