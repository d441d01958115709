package domain

// LabelColor is one of the fixed swatch colors a label can take.
type LabelColor string

const (
	ColorRed     LabelColor = "red"
	ColorOrange  LabelColor = "orange"
	ColorAmber   LabelColor = "amber"
	ColorYellow  LabelColor = "yellow"
	ColorLime    LabelColor = "lime"
	ColorGreen   LabelColor = "green"
	ColorTeal    LabelColor = "teal"
	ColorCyan    LabelColor = "cyan"
	ColorSky     LabelColor = "sky"
	ColorBlue    LabelColor = "blue"
	ColorIndigo  LabelColor = "indigo"
	ColorViolet  LabelColor = "violet"
	ColorPurple  LabelColor = "purple"
	ColorFuchsia LabelColor = "fuchsia"
	ColorPink    LabelColor = "pink"
	ColorRose    LabelColor = "rose"
)

// LabelColors lists every valid swatch color.
var LabelColors = []LabelColor{
	ColorRed, ColorOrange, ColorAmber, ColorYellow,
	ColorLime, ColorGreen, ColorTeal, ColorCyan,
	ColorSky, ColorBlue, ColorIndigo, ColorViolet,
	ColorPurple, ColorFuchsia, ColorPink, ColorRose,
}

// Valid reports whether c is one of the fixed swatch colors.
func (c LabelColor) Valid() bool {
	for _, v := range LabelColors {
		if c == v {
			return true
		}
	}
	return false
}

// Label is a colored tag tasks can carry. Names are not unique at storage;
// two labels may share a name under different ids.
type Label struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Color LabelColor `json:"color"`
}

// DefaultLabels returns the label set every live board starts with. A fresh
// slice is returned on each call so callers may append freely.
func DefaultLabels() []Label {
	return []Label{
		{ID: "lbl-red", Name: "Urgent", Color: ColorRed},
		{ID: "lbl-blue", Name: "Info", Color: ColorBlue},
		{ID: "lbl-green", Name: "Feature", Color: ColorGreen},
		{ID: "lbl-amber", Name: "Chore", Color: ColorAmber},
	}
}

// LabelPatch is a partial label update. Nil fields are left untouched.
type LabelPatch struct {
	Name  *string     `json:"name,omitempty"`
	Color *LabelColor `json:"color,omitempty"`
}
