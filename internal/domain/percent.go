package domain

// Percent returns the change from base to v in percent, 0 when base is 0.
func Percent(v, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (v - base) / base * 100
}
