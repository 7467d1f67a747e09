package gridengine

import (
	"time"

	"github.com/shopspring/decimal"

	"gridtrader/internal/core"
)

// Snapshot is the STATUS operator-console response.
type Snapshot struct {
	Running          bool
	Market           string
	CurrentPrice     decimal.Decimal
	ActiveContracts  int
	PendingBuys      int
	PendingBuyPrices []decimal.Decimal
	UnrealizedPnL    decimal.Decimal
}

// ReportRow is one line of the REPORT operator-console response.
type ReportRow struct {
	ContractID int64
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
	Profit     decimal.Decimal
	ProfitRate decimal.Decimal
	FinishedAt time.Time
}

func contractToReportRow(c *core.Contract) ReportRow {
	return ReportRow{
		ContractID: c.ID,
		BuyPrice:   c.BuyPrice,
		SellPrice:  c.SellPrice,
		Profit:     c.Profit,
		ProfitRate: c.ProfitRate,
		FinishedAt: c.FinishedAt,
	}
}
