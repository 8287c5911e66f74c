package utils

import "math"

// RoundDown усекает значение вниз до указанного числа знаков.
// Используется для количеств ордеров: округление вверх может
// превысить доступный баланс.
func RoundDown(value float64, decimals int) float64 {
	if decimals < 0 {
		return value
	}
	factor := math.Pow(10, float64(decimals))
	return math.Floor(value*factor) / factor
}

// SpreadPercent возвращает спред между ask и bid в процентах от ask.
// Для ask <= 0 возвращает 0: вырожденная цена не образует спреда.
func SpreadPercent(ask, bid float64) float64 {
	if ask <= 0 {
		return 0
	}
	return (bid - ask) / ask * 100
}

// ClampNonNegative обрезает отрицательные значения до нуля
func ClampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
