package fits

import (
	"math"

	"github.com/LutherAstrophysics/m23/internal/star"
)

// Project resamples img into a new coordinate system under trans, filling
// pixels that fall outside the source frame with outOfBounds. Uses
// bilinear interpolation, sampling from the target coordinate system's
// point of view via the inverse transform.
func (img *Image) Project(destNaxisn []int32, trans star.Transform2D, outOfBounds float32) (res *Image, err error) {
	invTrans, err := trans.Invert()
	if err != nil {
		return nil, err
	}

	destWidth := destNaxisn[0]
	res = NewImageFromNaxisn(destNaxisn, nil)
	res.ID, res.Exposure = img.ID, img.Exposure

	d := img.Data
	origWidth := img.Naxisn[0]

	for row := int32(0); row < destNaxisn[1]; row++ {
		for col := int32(0); col < destWidth; col++ {
			pt := star.Point2D{X: float32(col), Y: float32(row)}
			proj := invTrans.Apply(pt)

			xl, yl := int32(math.Floor(float64(proj.X))), int32(math.Floor(float64(proj.Y)))
			xh, yh := xl+1, yl+1
			xr, yr := proj.X-float32(xl), proj.Y-float32(yl)

			// a sample exactly on the last column or row needs no right/lower neighbor
			if xh == origWidth && xr == 0 {
				xh = xl
			}
			if yh == img.Naxisn[1] && yr == 0 {
				yh = yl
			}

			if xl < 0 || xh >= origWidth || yl < 0 || yh >= img.Naxisn[1] {
				res.Data[col+row*destWidth] = outOfBounds
				continue
			}

			xlyl := xl + yl*origWidth
			xhyl := xh + yl*origWidth
			xlyh := xl + yh*origWidth
			xhyh := xh + yh*origWidth

			vyl := d[xlyl]*(1-xr) + d[xhyl]*xr
			vyh := d[xlyh]*(1-xr) + d[xhyh]*xr
			v := vyl*(1-yr) + vyh*yr

			res.Data[col+row*destWidth] = v
		}
	}
	return res, nil
}
