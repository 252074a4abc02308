package ndvi

import "math"

// Reflectance returns the top of atmosphere reflectance of the digital number
// dn, corrected for sun elevation in degrees. Pixels equal to noData or NaN
// have reflectance zero, as do pixels whose reflectance is not finite.
func Reflectance(dn, mult, add, sunElevation, noData float64) float64 {
	if math.IsNaN(dn) || dn == noData {
		return 0
	}
	return finiteOrZero((dn*mult + add) / math.Sin(sunElevation*math.Pi/180))
}

// ReflectanceGrid returns the reflectance of every pixel in dn.
func ReflectanceGrid(dn *Grid, calibration Calibration, sunElevation, noData float64) *Grid {
	reflectance := NewGrid(dn.Width, dn.Height)
	for i, value := range dn.Data {
		reflectance.Data[i] = Reflectance(value, calibration.Mult, calibration.Add, sunElevation, noData)
	}
	return reflectance
}

// finiteOrZero returns x, or zero if x is NaN or infinite.
func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
