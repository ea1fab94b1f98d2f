package star

import (
	"errors"
	"fmt"
	"math"
)

// Point2D is a 2-dimensional point with floating point coordinates.
type Point2D struct {
	X float32
	Y float32
}

// Rect2D is a 2-dimensional rectangle with floating point coordinates.
type Rect2D struct {
	A Point2D
	B Point2D
}

// Point3D is a 3-dimensional point with floating point coordinates.
type Point3D struct {
	X float32
	Y float32
	Z float32
}

// Point3DPayload is a 3-dimensional point carrying an arbitrary payload,
// used to recover the originating triangle index after a nearest-neighbor
// lookup in the side-length KD-tree.
type Point3DPayload struct {
	Point3D
	Payload interface{}
}

// Transform2D is an affine 2D coordinate transformation:
// x' = A*x + B*y + C, y' = D*x + E*y + F.
type Transform2D struct {
	A float32
	B float32
	C float32
	D float32
	E float32
	F float32
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

func (r Rect2D) String() string {
	return fmt.Sprintf("(%v, %v)", r.A, r.B)
}

func (p Point3D) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

func (t Transform2D) String() string {
	return fmt.Sprintf("x'=%.5gx %+.5gy %+.2g, y'=%.5gx %+.5gy %+.2g",
		t.A, t.B, t.C, t.D, t.E, t.F)
}

// Dist2D returns the euclidian distance between two points.
func Dist2D(a, b Point2D) float32 {
	dSquared := Dist2DSquared(a, b)
	return float32(math.Sqrt(float64(dSquared)))
}

// Dist2DSquared returns the squared euclidian distance between two points.
func Dist2DSquared(a, b Point2D) float32 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

func Add2D(a, b Point2D) Point2D {
	return Point2D{a.X + b.X, a.Y + b.Y}
}

func Sub2D(a, b Point2D) Point2D {
	return Point2D{a.X - b.X, a.Y - b.Y}
}

// Dist3D returns the euclidian distance between two points.
func Dist3D(a, b Point3D) float32 {
	dSquared := Dist3DSquared(a, b)
	return float32(math.Sqrt(float64(dSquared)))
}

// Dist3DSquared returns the squared euclidian distance between two points.
func Dist3DSquared(a, b Point3D) float32 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

func IdentityTransform2D() Transform2D {
	return Transform2D{1, 0, 0, 0, 1, 0}
}

// NewTransform2D computes the affine transformation mapping p1,p2,p3 in the
// first coordinate system onto p1p,p2p,p3p in the second.
func NewTransform2D(p1, p2, p3, p1p, p2p, p3p Point2D) (Transform2D, error) {
	a := ((p3p.X-p1p.X)*(p2.Y-p1.Y) - (p2p.X-p1p.X)*(p3.Y-p1.Y)) /
		((p2.Y-p1.Y)*(p3.X-p1.X) - (p2.X-p1.X)*(p3.Y-p1.Y))

	b := ((p2p.X - p1p.X) - a*(p2.X-p1.X)) / (p2.Y - p1.Y)

	c := p1p.X - a*p1.X - b*p1.Y

	d := ((p3p.Y-p1p.Y)*(p2.Y-p1.Y) - (p2p.Y-p1p.Y)*(p3.Y-p1.Y)) /
		((p2.Y-p1.Y)*(p3.X-p1.X) - (p2.X-p1.X)*(p3.Y-p1.Y))

	e := ((p2p.Y - p1p.Y) - d*(p2.X-p1.X)) / (p2.Y - p1.Y)

	f := p1p.Y - d*p1.X - e*p1.Y

	if math.IsInf(float64(a), 0) || math.IsInf(float64(b), 0) || math.IsInf(float64(d), 0) || math.IsInf(float64(e), 0) {
		return Transform2D{}, errors.New("divide by zero")
	}
	return Transform2D{a, b, c, d, e, f}, nil
}

// Apply applies the transformation to a single point.
func (t *Transform2D) Apply(p Point2D) (pP Point2D) {
	xP := t.A*p.X + t.B*p.Y + t.C
	yP := t.D*p.X + t.E*p.Y + t.F
	return Point2D{xP, yP}
}

// ApplySlice applies the transformation to many points.
func (t *Transform2D) ApplySlice(ps []Point2D) (pPs []Point2D) {
	pPs = make([]Point2D, len(ps))
	for i, p := range ps {
		pPs[i] = t.Apply(p)
	}
	return pPs
}

// Invert returns the inverse transformation, or an error if it is singular.
func (t *Transform2D) Invert() (inv Transform2D, err error) {
	if epsilon := t.B*t.D - t.A*t.E; epsilon < 1e-8 && -epsilon < 1e-8 {
		msg := fmt.Sprintf("Matrix has no inverse, epsilon=%g", epsilon)
		return Transform2D{}, errors.New(msg)
	}
	return Transform2D{
		A: -t.E / (t.B*t.D - t.A*t.E),
		B: t.B / (t.B*t.D - t.A*t.E),
		C: (t.C*t.E - t.B*t.F) / (t.B*t.D - t.A*t.E),
		D: -t.D / (t.A*t.E - t.B*t.D),
		E: t.A / (t.A*t.E - t.B*t.D),
		F: (t.C*t.D - t.A*t.F) / (t.A*t.E - t.B*t.D),
	}, nil
}
