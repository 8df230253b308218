package render

// Chart colours.
const (
	ColorBackground    = "#0d1117"
	ColorText          = "#ffffff"
	ColorTextSecondary = "#8b949e"
	ColorGold          = "#ffd700"
	ColorSilver        = "#c0c0c0"
	ColorBronze        = "#cd7f32"
	ColorOther         = "#58a6ff"
)

// Tier is the colour class of a bar, decided by its position alone.
type Tier int

const (
	TierGold Tier = iota
	TierSilver
	TierBronze
	TierOther
)

var tierColors = [...]string{
	TierGold:   ColorGold,
	TierSilver: ColorSilver,
	TierBronze: ColorBronze,
	TierOther:  ColorOther,
}

var tierNames = [...]string{
	TierGold:   "gold",
	TierSilver: "silver",
	TierBronze: "bronze",
	TierOther:  "other",
}

// TierFor returns the tier of the bar at zero-based index. Equal values at
// different positions get different tiers.
func TierFor(index int) Tier {
	if index >= 0 && index < int(TierOther) {
		return Tier(index)
	}
	return TierOther
}

// Color returns the tier's hex colour.
func (t Tier) Color() string {
	if t < TierGold || t > TierOther {
		return ColorOther
	}
	return tierColors[t]
}

func (t Tier) String() string {
	if t < TierGold || t > TierOther {
		return tierNames[TierOther]
	}
	return tierNames[t]
}

// calendarLevels are the contribution cell colours from empty to busiest.
var calendarLevels = [...]string{"#161b22", "#0e4429", "#006d32", "#26a641", "#39d353"}
