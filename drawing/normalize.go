package drawing

import "inkboard/geometry"

// Space tells which coordinate space a serialized document uses.
type Space int

const (
	// Absolute coordinates are surface pixels.
	Absolute Space = iota
	// Normalized coordinates are fractions (0..1) of the surface size.
	Normalized
)

func (s Space) String() string {
	if s == Normalized {
		return "normalized"
	}
	return "absolute"
}

// Normalize returns a copy of d with every origin and coordinate divided by the
// surface size: x components by width, y components by height.
func Normalize(d *Document, width, height float64) *Document {
	return transform(d, func(v float64, isX bool) float64 {
		if isX {
			return v / width
		}
		return v / height
	})
}

// Denormalize is the inverse of Normalize.
func Denormalize(d *Document, width, height float64) *Document {
	return transform(d, func(v float64, isX bool) float64 {
		if isX {
			return v * width
		}
		return v * height
	})
}

// Rescale re-derives absolute coordinates for a new surface size through the
// normalized form.
func Rescale(d *Document, fromW, fromH, toW, toH float64) *Document {
	return Denormalize(Normalize(d, fromW, fromH), toW, toH)
}

func transform(d *Document, fn func(v float64, isX bool) float64) *Document {
	paths := d.Paths()
	for i := range paths {
		p := &paths[i]
		p.Left = geometry.Finite(fn(geometry.Finite(p.Left), true))
		p.Top = geometry.Finite(fn(geometry.Finite(p.Top), false))
		for _, s := range p.Segments {
			for j := range s.Coords {
				s.Coords[j] = geometry.Finite(fn(geometry.Finite(s.Coords[j]), j%2 == 0))
			}
		}
	}
	out := &Document{}
	_ = out.Replace(paths)
	return out
}

// DetectSpace guesses the coordinate space of a stored document. The first
// path is sampled: if both origin components are ≤ 1 the document is treated
// as normalized. Absolute drawings that really sit within the first pixel are
// misclassified; there is no stored flag to tell them apart.
func DetectSpace(d *Document) Space {
	if d.Empty() {
		return Absolute
	}
	o := d.paths[0].Origin()
	if o.X <= 1 && o.Y <= 1 {
		return Normalized
	}
	return Absolute
}

// ToAbsolute returns d in surface pixels, denormalizing only when DetectSpace
// says the document is normalized.
func ToAbsolute(d *Document, width, height float64) (*Document, Space) {
	space := DetectSpace(d)
	if space == Normalized {
		return Denormalize(d, width, height), space
	}
	return d.Clone(), space
}
