package settlement

import (
	"github.com/ksred/bistro-api/internal/types"
	"github.com/shopspring/decimal"
)

const DefaultMethod = "CASH"

// SettleRequest carries the optional overrides of a pay call.
// A nil Amount settles for the stored order total.
type SettleRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Method *string          `json:"method"`
}

type SettlementResult struct {
	Payment           *types.Payment    `json:"payment"`
	StockMoves        []types.StockMove `json:"stock_moves"`
	StockMovesCreated int               `json:"stock_moves_created"`
	Order             *types.Order      `json:"order"`
}
