package domain

const bpsDenominator = 10000

// SplitFee divides amount between the platform and the counterparty at
// feeBps basis points. The platform cut is floored, so the remainder side
// absorbs the rounding; callers rely on platformCut+remainder == amount.
func SplitFee(amount int64, feeBps int32) (platformCut, remainder int64) {
	platformCut = amount * int64(feeBps) / bpsDenominator
	remainder = amount - platformCut
	return platformCut, remainder
}

// SplitResaleFee computes the three-way resale split. Platform cut and
// organizer royalty are independent floored computations against the sale
// price; the seller proceeds absorb all residual rounding.
func SplitResaleFee(price int64, resaleFeeBps, royaltyFeeBps int32) (platformCut, royalty, sellerProceeds int64) {
	platformCut = price * int64(resaleFeeBps) / bpsDenominator
	royalty = price * int64(royaltyFeeBps) / bpsDenominator
	sellerProceeds = price - platformCut - royalty
	return platformCut, royalty, sellerProceeds
}
