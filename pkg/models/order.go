package models

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) Sign() int {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideSell {
		return OrderSideBuy
	}
	return OrderSideSell
}

// SideFor maps a signed quantity to the side that produces it.
func SideFor(signedQty int) OrderSide {
	if signedQty < 0 {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type OrderRequest struct {
	Ticker   string
	Side     OrderSide
	Type     OrderType
	Quantity int
	Price    float64
}

// Fill summarises a sliced parent order.
type Fill struct {
	Ticker    string
	Side      OrderSide
	Requested int
	Filled    int
	Children  int
}

func (f Fill) Complete() bool {
	return f.Filled == f.Requested
}
