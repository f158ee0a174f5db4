package core

// FrequencyAmount is the projected spend of all records sharing a frequency.
type FrequencyAmount struct {
	Frequency Frequency
	Amount    Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year        int
	Month       int // 1-12
	DaysInMonth int
	Total       Money
	ByFrequency []FrequencyAmount
}
