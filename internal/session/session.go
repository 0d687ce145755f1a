package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/xiangqi-server/internal/xiangqi"
)

// Session is one room's game. All exported methods are safe for concurrent
// use; mutations are serialised by a per-session mutex and events are
// published after the mutex is released.
type Session struct {
	mu sync.Mutex

	id     string
	roomID string
	opts   Options

	status  Status
	reason  string
	turn    xiangqi.Side
	board   xiangqi.Board
	history []xiangqi.Move
	record  []string

	seats [3]*Participant // indexed by xiangqi.Side

	selection *xiangqi.Position
	hints     []xiangqi.Position

	clocks      [3]time.Duration
	turnStarted time.Time
	undoUsed    int
	drawOffer   xiangqi.Side

	createdAt    time.Time
	startedAt    time.Time
	endedAt      time.Time
	lastMoveAt   time.Time
	lastActivity time.Time
}

// New creates a waiting session for roomID with the opening position.
func New(roomID string, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UndoBudget < 0 {
		opts.UndoBudget = 0
	}
	now := opts.Now()
	s := &Session{
		id:           uuid.NewString(),
		roomID:       roomID,
		opts:         opts,
		status:       StatusWaiting,
		turn:         xiangqi.Red,
		board:        xiangqi.OpeningBoard(),
		createdAt:    now,
		lastActivity: now,
	}
	s.resetClocks()
	return s
}

// ID identifies the current game. It changes on Rematch.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActivity is the time of the last successful mutation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SideOf returns the seat held by identity, or NoSide.
func (s *Session) SideOf(identity string) xiangqi.Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sideOf(identity)
}

// IsTurnOf reports whether identity holds the seat on move.
func (s *Session) IsTurnOf(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	side := s.sideOf(identity)
	return side != xiangqi.NoSide && side == s.turn
}

// Empty reports whether both seats are vacant.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[xiangqi.Red] == nil && s.seats[xiangqi.Black] == nil
}

// AnyConnected reports whether any seated participant is connected.
func (s *Session) AnyConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.seats {
		if p != nil && p.Connected {
			return true
		}
	}
	return false
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.opts.Now())
}

// Seat places identity on side. NoSide picks the first free seat, Red first.
func (s *Session) Seat(identity, name string, side xiangqi.Side) (xiangqi.Side, error) {
	s.mu.Lock()
	seated, evs, err := s.seat(identity, name, side)
	s.mu.Unlock()
	s.emit(evs)
	return seated, err
}

func (s *Session) seat(identity, name string, side xiangqi.Side) (xiangqi.Side, []Event, error) {
	if s.status != StatusWaiting {
		return xiangqi.NoSide, nil, ErrNotWaiting
	}
	if s.seats[xiangqi.Red] != nil && s.seats[xiangqi.Black] != nil {
		return xiangqi.NoSide, nil, ErrSeatsFull
	}
	if identity != "" && s.sideOf(identity) != xiangqi.NoSide {
		return xiangqi.NoSide, nil, ErrAlreadySeated
	}
	switch side {
	case xiangqi.Red, xiangqi.Black:
		if s.seats[side] != nil {
			return xiangqi.NoSide, nil, ErrSeatTaken
		}
	default:
		side = xiangqi.Red
		if s.seats[side] != nil {
			side = xiangqi.Black
		}
	}
	p := &Participant{Identity: identity, Name: name, Side: side, Connected: true}
	s.seats[side] = p
	now := s.touch()
	cp := *p
	return side, []Event{s.event(EventSeatFilled, now, func(e *Event) { e.Side = side; e.Participant = &cp })}, nil
}

// Vacate frees identity's seat. Leaving a game in progress abandons it.
func (s *Session) Vacate(identity string) (xiangqi.Side, error) {
	s.mu.Lock()
	side, evs, err := s.vacate(identity)
	s.mu.Unlock()
	s.emit(evs)
	return side, err
}

func (s *Session) vacate(identity string) (xiangqi.Side, []Event, error) {
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return xiangqi.NoSide, nil, ErrNotSeated
	}
	now := s.touch()
	var evs []Event
	if s.status == StatusPlaying || s.status == StatusPaused {
		s.chargeClock(now)
		s.finish(StatusAbandoned, ReasonAbandoned, now)
		s.record = append(s.record, side.Label()+" 퇴장")
		evs = append(evs, s.ended(now))
	}
	left := *s.seats[side]
	s.seats[side] = nil
	if s.status == StatusWaiting {
		if other := s.seats[side.Opponent()]; other != nil {
			other.Ready = false
		}
	}
	evs = append(evs, s.event(EventParticipantLeft, now, func(e *Event) { e.Side = side; e.Participant = &left }))
	return side, evs, nil
}

// SetConnected records a participant's connection state. Losing a connection
// during play pauses the game; play resumes once both seats are connected.
func (s *Session) SetConnected(identity string, connected bool) error {
	s.mu.Lock()
	evs, err := s.setConnected(identity, connected)
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) setConnected(identity string, connected bool) ([]Event, error) {
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	p := s.seats[side]
	if p.Connected == connected {
		return nil, nil
	}
	p.Connected = connected
	now := s.touch()
	cp := *p
	evs := []Event{s.event(EventConnectionChanged, now, func(e *Event) { e.Side = side; e.Participant = &cp })}
	switch {
	case !connected && s.status == StatusPlaying:
		evs = append(evs, s.pause(now))
	case connected && s.status == StatusPaused && s.allConnected():
		evs = append(evs, s.resume(now))
	}
	return evs, nil
}

// Pause suspends a game in progress and freezes the clocks.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.status != StatusPlaying {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	now := s.touch()
	ev := s.pause(now)
	s.mu.Unlock()
	s.emit([]Event{ev})
	return nil
}

// Resume continues a paused game.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.status != StatusPaused {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	now := s.touch()
	ev := s.resume(now)
	s.mu.Unlock()
	s.emit([]Event{ev})
	return nil
}

func (s *Session) pause(now time.Time) Event {
	s.chargeClock(now)
	s.status = StatusPaused
	return s.event(EventGamePaused, now, nil)
}

func (s *Session) resume(now time.Time) Event {
	s.status = StatusPlaying
	s.turnStarted = now
	return s.event(EventGameResumed, now, nil)
}

func (s *Session) SetReady(identity string, ready bool) error {
	s.mu.Lock()
	evs, err := s.setReady(identity, ready)
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) setReady(identity string, ready bool) ([]Event, error) {
	if s.status != StatusWaiting {
		return nil, ErrNotWaiting
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	s.seats[side].Ready = ready
	now := s.touch()
	cp := *s.seats[side]
	return []Event{s.event(EventReadyChanged, now, func(e *Event) { e.Side = side; e.Participant = &cp })}, nil
}

// Start begins play once both seats are filled and ready.
func (s *Session) Start() error {
	s.mu.Lock()
	evs, err := s.start()
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) start() ([]Event, error) {
	if s.status != StatusWaiting {
		return nil, ErrNotWaiting
	}
	red, black := s.seats[xiangqi.Red], s.seats[xiangqi.Black]
	if red == nil || black == nil {
		return nil, ErrSeatsOpen
	}
	if !red.Ready || !black.Ready {
		return nil, ErrNotReady
	}
	now := s.touch()
	s.board = xiangqi.OpeningBoard()
	s.history = nil
	s.record = nil
	s.turn = xiangqi.Red
	s.undoUsed = 0
	s.drawOffer = xiangqi.NoSide
	s.clearSelection()
	s.resetClocks()
	s.status = StatusPlaying
	s.reason = ""
	s.startedAt = now
	s.endedAt = time.Time{}
	s.lastMoveAt = time.Time{}
	s.turnStarted = now
	return []Event{s.event(EventGameStarted, now, nil)}, nil
}

// SelectPiece selects a friendly piece and computes its legal destinations.
// With a piece already selected, choosing an empty or enemy cell attempts
// a move there.
func (s *Session) SelectPiece(identity string, pos xiangqi.Position) (Selection, error) {
	s.mu.Lock()
	sel, evs, err := s.selectPiece(identity, pos)
	s.mu.Unlock()
	s.emit(evs)
	return sel, err
}

func (s *Session) selectPiece(identity string, pos xiangqi.Position) (Selection, []Event, error) {
	side, err := s.requireTurn(identity)
	if err != nil {
		return Selection{}, nil, err
	}
	if !pos.IsValid() {
		return Selection{}, nil, ErrOffBoard
	}
	if p, ok := s.board.PieceAt(pos); ok && p.Side == side {
		moves := xiangqi.LegalMovesFrom(&s.board, pos)
		dests := make([]xiangqi.Position, 0, len(moves))
		for _, m := range moves {
			dests = append(dests, m.To)
		}
		sel := pos
		s.selection = &sel
		s.hints = dests
		now := s.touch()
		ev := s.event(EventSelectionChanged, now, func(e *Event) {
			e.Side = side
			e.Position = &sel
			e.Destinations = append([]xiangqi.Position(nil), dests...)
		})
		return Selection{Position: pos, Destinations: dests}, []Event{ev}, nil
	}
	if s.selection == nil {
		return Selection{}, nil, ErrNoSelection
	}
	m, evs, err := s.tryMove(identity, *s.selection, pos)
	if err != nil {
		return Selection{}, evs, err
	}
	return Selection{Position: pos, Moved: true, Move: m}, evs, nil
}

// TryMove validates and applies from->to for identity.
//
// A move attempted after the mover's clock has run out is rejected with
// ErrClockExpired and the game ends as a timeout loss for the mover. That is
// the one failure that changes state; callers must not treat it as a no-op.
func (s *Session) TryMove(identity string, from, to xiangqi.Position) (xiangqi.Move, error) {
	s.mu.Lock()
	m, evs, err := s.tryMove(identity, from, to)
	s.mu.Unlock()
	s.emit(evs)
	return m, err
}

func (s *Session) tryMove(identity string, from, to xiangqi.Position) (xiangqi.Move, []Event, error) {
	side, err := s.requireTurn(identity)
	if err != nil {
		return xiangqi.Move{}, nil, err
	}
	if !from.IsValid() || !to.IsValid() {
		return xiangqi.Move{}, nil, ErrOffBoard
	}
	p, ok := s.board.PieceAt(from)
	if !ok {
		return xiangqi.Move{}, nil, ErrIllegalMove
	}
	if p.Side != side {
		return xiangqi.Move{}, nil, ErrNotYourPiece
	}
	now := s.opts.Now()
	if s.clockEnabled() && s.remaining(side, now) <= 0 {
		s.touch()
		return xiangqi.Move{}, s.concede(side, ReasonTimeout, now), ErrClockExpired
	}
	if !xiangqi.IsLegalMove(&s.board, from, to) {
		return xiangqi.Move{}, nil, ErrIllegalMove
	}
	m, err := s.board.ApplyMove(from, to)
	if err != nil {
		return xiangqi.Move{}, nil, ErrIllegalMove
	}
	s.touch()
	s.chargeClock(now)
	s.history = append(s.history, m)
	s.record = append(s.record, m.Notation())
	s.clearSelection()
	s.drawOffer = xiangqi.NoSide
	s.turn = side.Opponent()
	s.turnStarted = now
	s.lastMoveAt = now

	res, reason := xiangqi.Evaluate(&s.board, s.turn)
	if res != xiangqi.Ongoing {
		s.finish(fromResult(res), reason, now)
	}
	mv := m
	evs := []Event{s.event(EventMoveApplied, now, func(e *Event) { e.Side = side; e.Move = &mv })}
	if s.status.Terminal() {
		evs = append(evs, s.ended(now))
	}
	return m, evs, nil
}

// Undo takes back the last move. Either seated participant may ask; the
// undo budget is shared by both sides.
func (s *Session) Undo(identity string) error {
	s.mu.Lock()
	evs, err := s.undo(identity)
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) undo(identity string) ([]Event, error) {
	if !s.opts.UndoEnabled {
		return nil, ErrUndoDisabled
	}
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if len(s.history) == 0 {
		return nil, ErrNoHistory
	}
	if s.undoUsed >= s.opts.UndoBudget {
		return nil, ErrUndoBudget
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	last := s.history[len(s.history)-1]
	now := s.touch()
	s.chargeClock(now)
	s.history = s.history[:len(s.history)-1]
	s.board.UndoMove(last)
	s.undoUsed++
	s.turn = last.Moved.Side
	s.turnStarted = now
	s.drawOffer = xiangqi.NoSide
	s.clearSelection()
	s.record = append(s.record, "무르기 "+last.Notation())
	mv := last
	return []Event{s.event(EventUndoApplied, now, func(e *Event) { e.Side = side; e.Move = &mv })}, nil
}

// Surrender ends the game in the opponent's favour.
func (s *Session) Surrender(identity string) (Status, error) {
	s.mu.Lock()
	evs, err := s.surrender(identity)
	st := s.status
	s.mu.Unlock()
	s.emit(evs)
	return st, err
}

func (s *Session) surrender(identity string) ([]Event, error) {
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	now := s.touch()
	return s.concede(side, ReasonSurrender, now), nil
}

// ExpireClock is the external timer trigger: when the side to move has run
// out of time it loses, through the same path as a surrender.
func (s *Session) ExpireClock(now time.Time) (Status, bool) {
	s.mu.Lock()
	if s.status != StatusPlaying || !s.clockEnabled() || s.remaining(s.turn, now) > 0 {
		st := s.status
		s.mu.Unlock()
		return st, false
	}
	s.touch()
	evs := s.concede(s.turn, ReasonTimeout, now)
	st := s.status
	s.mu.Unlock()
	s.emit(evs)
	return st, true
}

func (s *Session) ProposeDraw(identity string) error {
	s.mu.Lock()
	evs, err := s.proposeDraw(identity)
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) proposeDraw(identity string) ([]Event, error) {
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	if s.drawOffer == side.Opponent() {
		return s.agreeDraw(side), nil
	}
	s.drawOffer = side
	now := s.touch()
	s.record = append(s.record, side.Label()+" 무승부 제안")
	return []Event{s.event(EventDrawOffered, now, func(e *Event) { e.Side = side })}, nil
}

// AcceptDraw ends the game drawn. It requires a pending offer from the other seat.
func (s *Session) AcceptDraw(identity string) error {
	s.mu.Lock()
	evs, err := s.acceptDraw(identity)
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) acceptDraw(identity string) ([]Event, error) {
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	switch s.drawOffer {
	case xiangqi.NoSide:
		return nil, ErrNoDrawOffer
	case side:
		return nil, ErrOwnDrawOffer
	}
	return s.agreeDraw(side), nil
}

func (s *Session) agreeDraw(side xiangqi.Side) []Event {
	now := s.touch()
	s.chargeClock(now)
	s.drawOffer = xiangqi.NoSide
	s.record = append(s.record, side.Label()+" 무승부 수락")
	s.finish(StatusDraw, ReasonDrawAgreed, now)
	return []Event{s.ended(now)}
}

func (s *Session) DeclineDraw(identity string) error {
	s.mu.Lock()
	evs, err := s.declineDraw(identity)
	s.mu.Unlock()
	s.emit(evs)
	return err
}

func (s *Session) declineDraw(identity string) ([]Event, error) {
	if s.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return nil, ErrNotSeated
	}
	if s.drawOffer != side.Opponent() {
		return nil, ErrNoDrawOffer
	}
	s.drawOffer = xiangqi.NoSide
	now := s.touch()
	return []Event{s.event(EventDrawDeclined, now, func(e *Event) { e.Side = side })}, nil
}

// Rematch returns a finished session to Waiting with a fresh board and a new
// game ID. Seats are kept.
func (s *Session) Rematch() error {
	s.mu.Lock()
	if !s.status.Terminal() {
		s.mu.Unlock()
		return ErrNotFinished
	}
	now := s.touch()
	s.id = uuid.NewString()
	s.status = StatusWaiting
	s.reason = ""
	s.board = xiangqi.OpeningBoard()
	s.history = nil
	s.record = nil
	s.turn = xiangqi.Red
	s.undoUsed = 0
	s.drawOffer = xiangqi.NoSide
	s.clearSelection()
	s.resetClocks()
	for _, p := range s.seats {
		if p != nil {
			p.Ready = false
		}
	}
	ev := s.event(EventSessionReset, now, nil)
	s.mu.Unlock()
	s.emit([]Event{ev})
	return nil
}

// helpers; callers hold s.mu

func (s *Session) sideOf(identity string) xiangqi.Side {
	if identity == "" {
		return xiangqi.NoSide
	}
	for _, side := range []xiangqi.Side{xiangqi.Red, xiangqi.Black} {
		if p := s.seats[side]; p != nil && p.Identity == identity {
			return side
		}
	}
	return xiangqi.NoSide
}

func (s *Session) requireTurn(identity string) (xiangqi.Side, error) {
	if s.status != StatusPlaying {
		return xiangqi.NoSide, ErrNotPlaying
	}
	side := s.sideOf(identity)
	if side == xiangqi.NoSide {
		return xiangqi.NoSide, ErrNotSeated
	}
	if side != s.turn {
		return side, ErrNotYourTurn
	}
	return side, nil
}

func (s *Session) allConnected() bool {
	red, black := s.seats[xiangqi.Red], s.seats[xiangqi.Black]
	return red != nil && black != nil && red.Connected && black.Connected
}

func (s *Session) clearSelection() {
	s.selection = nil
	s.hints = nil
}

func (s *Session) touch() time.Time {
	now := s.opts.Now()
	s.lastActivity = now
	return now
}

func (s *Session) concede(loser xiangqi.Side, reason string, now time.Time) []Event {
	s.chargeClock(now)
	s.drawOffer = xiangqi.NoSide
	switch reason {
	case ReasonTimeout:
		s.record = append(s.record, loser.Label()+" 시간패")
	default:
		s.record = append(s.record, loser.Label()+" 기권")
	}
	s.finish(winStatus(loser.Opponent()), reason, now)
	return []Event{s.ended(now)}
}

func (s *Session) finish(st Status, reason string, now time.Time) {
	s.status = st
	s.reason = reason
	s.endedAt = now
	s.clearSelection()
}

func (s *Session) ended(now time.Time) Event {
	return s.event(EventGameEnded, now, func(e *Event) { e.Side = s.snapshotWinner() })
}

func (s *Session) snapshotWinner() xiangqi.Side {
	switch s.status {
	case StatusRedWin:
		return xiangqi.Red
	case StatusBlackWin:
		return xiangqi.Black
	default:
		return xiangqi.NoSide
	}
}

func (s *Session) event(kind EventKind, now time.Time, fill func(e *Event)) Event {
	snap := s.snapshot(now)
	e := Event{
		Kind:      kind,
		RoomID:    s.roomID,
		SessionID: s.id,
		Status:    s.status,
		Reason:    s.reason,
		Snapshot:  &snap,
		At:        now,
	}
	if fill != nil {
		fill(&e)
	}
	return e
}

func (s *Session) emit(evs []Event) {
	if s.opts.Sink == nil {
		return
	}
	for _, e := range evs {
		s.opts.Sink.Publish(e)
	}
}

func (s *Session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		ID:          s.id,
		RoomID:      s.roomID,
		Status:      s.status,
		Reason:      s.reason,
		Turn:        s.turn,
		Board:       s.board,
		RedClock:    s.remaining(xiangqi.Red, now),
		BlackClock:  s.remaining(xiangqi.Black, now),
		UndoEnabled: s.opts.UndoEnabled,
		UndoBudget:  s.opts.UndoBudget,
		UndoUsed:    s.undoUsed,
		MoveCount:   len(s.history),
		Record:      append([]string(nil), s.record...),
		DrawOffer:   s.drawOffer,
		CreatedAt:   s.createdAt,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
		LastMoveAt:  s.lastMoveAt,
	}
	if p := s.seats[xiangqi.Red]; p != nil {
		cp := *p
		snap.Red = &cp
	}
	if p := s.seats[xiangqi.Black]; p != nil {
		cp := *p
		snap.Black = &cp
	}
	if s.selection != nil {
		sel := *s.selection
		snap.Selection = &sel
		snap.Hints = append([]xiangqi.Position(nil), s.hints...)
	}
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		snap.LastMove = &last
	}
	return snap
}
