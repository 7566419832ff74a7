package inventory

type StockItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Available int    `json:"available"`
}

type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// DepletedLine describes a line whose requested quantity exceeds the stock on hand.
type DepletedLine struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}
