package report

// Band classifies the intensity accumulated over one report window.
type Band string

const (
	BandLight  Band = "light"
	BandSteady Band = "steady"
	BandStrong Band = "strong"
	BandBeast  Band = "beast"
)

// BandOf returns the band for an intensity score.
func BandOf(intensity int) Band {
	switch {
	case intensity < 200:
		return BandLight
	case intensity < 600:
		return BandSteady
	case intensity < 1600:
		return BandStrong
	}
	return BandBeast
}

var positionLabels = map[int]string{
	1:  "missionary",
	2:  "left entry",
	3:  "right entry",
	4:  "doggy style",
	5:  "cowgirl",
	6:  "reverse cowgirl",
	7:  "left side riding",
	8:  "right side riding",
	9:  "standing front",
	10: "standing back",
}

// PositionLabel names a position key. Unknown keys map to "unknown".
func PositionLabel(p int) string {
	if l, ok := positionLabels[p]; ok {
		return l
	}
	return "unknown"
}

var excitementLabels = [...]string{"calm", "aroused", "excited", "thrilled", "ecstatic"}

// ExcitementLabel names an excitement level (1..5).
func ExcitementLabel(level int) string {
	if level < 1 || level > len(excitementLabels) {
		return "unknown"
	}
	return excitementLabels[level-1]
}
