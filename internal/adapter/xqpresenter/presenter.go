package xqpresenter

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/park285/xiangqi-server/internal/render"
	"github.com/park285/xiangqi-server/internal/session"
	"github.com/park285/xiangqi-server/internal/xiangqi"
)

// Presenter turns snapshots into board images for clients and webhooks.
type Presenter struct {
	renderer render.BoardRenderer
}

func NewPresenter(r render.BoardRenderer) *Presenter {
	if r == nil {
		r = render.NewSVGBoardRenderer()
	}
	return &Presenter{renderer: r}
}

// BoardImage renders s as a base64 PNG from viewer's side.
func (p *Presenter) BoardImage(ctx context.Context, s *session.Snapshot, viewer xiangqi.Side) (string, error) {
	return p.Render(ctx, s, viewer, viewer == xiangqi.Black)
}

// Render is BoardImage with an explicit orientation. The selection and its
// hints are only drawn for the side to move.
func (p *Presenter) Render(ctx context.Context, s *session.Snapshot, viewer xiangqi.Side, flip bool) (string, error) {
	if p == nil || s == nil {
		return "", nil
	}
	opts := render.RenderOptions{
		LastMove:  s.LastMove,
		HUDHeader: header(s),
		HUDTurn:   turnLine(s),
		Flip:      flip,
	}
	if viewer != xiangqi.NoSide && viewer == s.Turn {
		opts.Selection = s.Selection
		opts.Hints = s.Hints
	}
	png, err := p.renderer.RenderPNG(ctx, &s.Board, opts)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func header(s *session.Snapshot) string {
	name := func(pp *session.Participant) string {
		if pp == nil || pp.Name == "" {
			return "?"
		}
		return pp.Name
	}
	return fmt.Sprintf("%s vs %s", name(s.Red), name(s.Black))
}

func turnLine(s *session.Snapshot) string {
	switch {
	case s.Status.Terminal():
		if w := s.Winner(); w != xiangqi.NoSide {
			return w.String() + " wins"
		}
		return string(s.Status)
	case s.Status == session.StatusPlaying:
		return s.Turn.String() + " to move"
	default:
		return string(s.Status)
	}
}
