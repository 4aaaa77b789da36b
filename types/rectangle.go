package types

// Rectangle is a 4-element PDFArray constrained to four numbers,
// normalized on construction to [left, bottom, right, top] with
// left <= right and bottom <= top, adapted from model.Rectangle which
// stores the same four floats but without the array-backed,
// corner-normalizing constructor this library requires.
type Rectangle struct {
	Left, Bottom, Right, Top float64
}

// NewRectangle normalizes two arbitrary corners into a Rectangle.
func NewRectangle(x0, y0, x1, y1 float64) Rectangle {
	r := Rectangle{Left: x0, Bottom: y0, Right: x1, Top: y1}
	if r.Left > r.Right {
		r.Left, r.Right = r.Right, r.Left
	}
	if r.Bottom > r.Top {
		r.Bottom, r.Top = r.Top, r.Bottom
	}
	return r
}

// ToArray returns the PDF array representation [left bottom right top].
func (r Rectangle) ToArray() Array {
	return Array{Real(r.Left), Real(r.Bottom), Real(r.Right), Real(r.Top)}
}

// RectangleFromArray reconstructs a Rectangle from a 4-number array,
// normalizing corners as NewRectangle does. ok is false if a is not a
// 4-element array of numbers.
func RectangleFromArray(a Array) (r Rectangle, ok bool) {
	if len(a) != 4 {
		return r, false
	}
	var v [4]float64
	for i, o := range a {
		switch n := o.(type) {
		case Integer:
			v[i] = float64(n)
		case Real:
			v[i] = float64(n)
		default:
			return r, false
		}
	}
	return NewRectangle(v[0], v[1], v[2], v[3]), true
}
