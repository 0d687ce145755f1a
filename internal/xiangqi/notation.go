package xiangqi

// 棋谱 표기용 전통 명칭
var (
	redNames   = map[Kind]string{General: "帥", Advisor: "仕", Elephant: "相", Horse: "馬", Chariot: "車", Cannon: "炮", Soldier: "兵"}
	blackNames = map[Kind]string{General: "將", Advisor: "士", Elephant: "象", Horse: "馬", Chariot: "車", Cannon: "砲", Soldier: "卒"}
)

// Name returns the traditional character for p.
func (p Piece) Name() string {
	if p.Side == Red {
		return redNames[p.Kind]
	}
	return blackNames[p.Kind]
}

// Notation renders m as "<name><from>到<to>" or "<name><from>吃<to>".
func (m Move) Notation() string {
	verb := "到"
	if m.IsCapture() {
		verb = "吃"
	}
	return m.Moved.Name() + m.From.String() + verb + m.To.String()
}
