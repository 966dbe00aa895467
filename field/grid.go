package field

// Grid is a dense row-major scalar field.
type Grid struct {
	W, H int
	Data []float64
}

// NewGrid allocates a zeroed grid.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Data: make([]float64, w*h)}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{W: g.W, H: g.H, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// At returns the value at (x, y) without bounds checking.
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.W+x]
}

// Set writes the value at (x, y) without bounds checking.
func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.W+x] = v
}

// Max returns the maximum value, or 0 for an empty grid.
func (g *Grid) Max() float64 {
	if len(g.Data) == 0 {
		return 0
	}
	m := g.Data[0]
	for _, v := range g.Data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
