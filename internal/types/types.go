package types

type OrderKind string

type LeaderboardKind string

const (
	OrderKindBuyMarket  OrderKind = "buy_market"
	OrderKindBuyLimit   OrderKind = "buy_limit"
	OrderKindSellMarket OrderKind = "sell_market"
	OrderKindSellLimit  OrderKind = "sell_limit"
)

const (
	LeaderboardAbsolute LeaderboardKind = "absolute"
	LeaderboardRelative LeaderboardKind = "relative"
)

// Buy reports whether the kind adds shares to a holding when filled.
func (k OrderKind) Buy() bool {
	return k == OrderKindBuyMarket || k == OrderKindBuyLimit
}

// Sell reports whether the kind removes shares from a holding when filled.
func (k OrderKind) Sell() bool {
	return k == OrderKindSellMarket || k == OrderKindSellLimit
}

// Limit reports whether the order carries a caller-supplied limit price.
func (k OrderKind) Limit() bool {
	return k == OrderKindBuyLimit || k == OrderKindSellLimit
}

func (k OrderKind) Valid() bool {
	return k.Buy() || k.Sell()
}

func (k LeaderboardKind) Valid() bool {
	return k == LeaderboardAbsolute || k == LeaderboardRelative
}
