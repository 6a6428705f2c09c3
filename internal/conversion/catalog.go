package conversion

// Model is an entry of the voice model picker. Separators head a section
// and cannot be selected.
type Model struct {
	Name      string `json:"name"`
	ID        int    `json:"id"`
	Separator bool   `json:"separator,omitempty"`
}

// None means no conversion; the track plays its original take.
var None = Model{Name: "None", ID: 0}

// Models is the curated catalog, grouped by section.
var Models = []Model{
	{Name: "Instruments", ID: -1, Separator: true},
	{Name: "Violin", ID: 1304810},
	{Name: "Acoustic Guitar", ID: 1331644},
	{Name: "Electric Guitar", ID: 1331486},
	{Name: "Flute", ID: 1331492},
	{Name: "Metal Guitar", ID: 1304790},
	{Name: "Cello", ID: 201084},
	{Name: "Saxophone", ID: 1312985},
	{Name: "Trombone", ID: 1667093},
	{Name: "Vibraphone", ID: 1645481},
	{Name: "Funky Talk Box", ID: 1574304},
	{Name: "Oboe", ID: 1331640},
	{Name: "Trumpet", ID: 1331480},
	{Name: "Clarinet", ID: 1312991},

	{Name: "Drums", ID: -3, Separator: true},
	{Name: "80's Dance Drum Machine", ID: 1602174},
	{Name: "80's Drum Machine", ID: 1563738},
	{Name: "Gritty Tape Drums", ID: 212569},

	{Name: "Synths", ID: -2, Separator: true},
	{Name: "Classic Synth", ID: 1815802},
	{Name: "80's Synth", ID: 1689141},
	{Name: "New Age Lead", ID: 1331645},
	{Name: "Synth Choir", ID: 1331641},
	{Name: "Trance Lead", ID: 1331632},
	{Name: "Toy Synth", ID: 1658342},
	{Name: "Saw Lead", ID: 1304813},
	{Name: "Hypersaw Lead", ID: 1312973},
	{Name: "Sine Wave", ID: 1331494},
	{Name: "Square Wave", ID: 1312995},
	{Name: "8-bit Lead", ID: 1331487},
}

var modelsByID = func() map[int]Model {
	m := make(map[int]Model, len(Models))
	for _, model := range Models {
		m[model.ID] = model
	}
	return m
}()

// ModelByID returns the catalog entry for id, or None for unknown ids and
// separators.
func ModelByID(id int) Model {
	m, ok := modelsByID[id]
	if !ok || m.Separator {
		return None
	}
	return m
}

// IsSelectable reports whether id names a model a track can be converted to.
func IsSelectable(id int) bool {
	return ModelByID(id).ID != 0
}
