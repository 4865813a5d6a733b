package service

// PerEssayPrice maps a word count to the one-time essay price. This is the
// single pricing table: the quote endpoint and the charge path both call
// it, so the quoted price and the charged amount cannot diverge.
func PerEssayPrice(wordCount int) float64 {
	switch {
	case wordCount <= 1000:
		return 19.99
	case wordCount <= 2500:
		return 29.99
	case wordCount <= 5000:
		return 39.99
	default:
		return 49.99
	}
}

// PerEssayPriceCents returns the price in the smallest currency unit, as
// card networks expect.
func PerEssayPriceCents(wordCount int) int64 {
	return int64(PerEssayPrice(wordCount)*100 + 0.5)
}
