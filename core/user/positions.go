package user

// Position is one of the organization's board/staff roles.
// The executive flag is the single source of truth for executive-board
// membership; never string-match position names.
type Position string

const (
	PositionAdmin                    Position = "admin"
	PositionPresident                Position = "president"
	PositionInternalVicePresident    Position = "internal_vice_president"
	PositionOperationalVicePresident Position = "operational_vice_president"
	PositionExternalVicePresident    Position = "external_vice_president"
	PositionTreasurer                Position = "treasurer"
	PositionViceTreasurer            Position = "vice_treasurer"
	PositionGeneralSecretary         Position = "general_secretary"
	PositionCommercialDirector       Position = "commercial_director"
	PositionInfoPole                 Position = "info"
)

type PositionInfo struct {
	Value     Position `json:"value"`
	Name      string   `json:"name"`
	ShortName string   `json:"short_name"`
	Executive bool     `json:"executive"`
}

var Positions = []PositionInfo{
	{PositionAdmin, "Administrateur.trice", "Admin", true},
	{PositionPresident, "Président.e", "Prez", true},
	{PositionInternalVicePresident, "Vice-président.e interne", "VPI", true},
	{PositionOperationalVicePresident, "Vice-président.e opérationnel", "VPO", true},
	{PositionExternalVicePresident, "Vice-président.e externe", "VPE", true},
	{PositionTreasurer, "Trésorier.ère", "Trez", true},
	{PositionViceTreasurer, "Vice-trésorier.ère", "VTrez", true},
	{PositionGeneralSecretary, "Secrétaire général.e", "SecGe", true},
	{PositionCommercialDirector, "Directeur.rice commercial.e", "DirCo", true},
	{PositionInfoPole, "Membre pôle info", "Info", false},
}

var positionIndex = buildPositionIndex()

func buildPositionIndex() map[Position]PositionInfo {
	idx := make(map[Position]PositionInfo, len(Positions))
	for _, pi := range Positions {
		idx[pi.Value] = pi
	}
	return idx
}

// ValidPosition reports whether pos names a known position.
// The empty string is valid: members may have no position at all.
func ValidPosition(pos string) bool {
	if pos == "" {
		return true
	}
	_, ok := positionIndex[Position(pos)]
	return ok
}

func IsExecutive(pos Position) bool {
	return positionIndex[pos].Executive
}

// PositionName returns the display name and short name for a position,
// or empty strings if unknown.
func PositionName(pos Position) (name, short string) {
	pi := positionIndex[pos]
	return pi.Name, pi.ShortName
}
