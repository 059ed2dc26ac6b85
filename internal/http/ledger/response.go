package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

type entryResponse struct {
	ID          uuid.UUID   `json:"id"`
	Kind        ledger.Kind `json:"kind"`
	Description string      `json:"description"`
	Amount      string      `json:"amount"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}

func toResponse(e *ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Kind:        e.Kind,
		Description: e.Description,
		Amount:      ledger.FormatAmount(e.Amount),
		Active:      e.Active,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toResponseList(entries []*ledger.Entry) []entryResponse {
	resp := make([]entryResponse, len(entries))
	for i, e := range entries {
		resp[i] = toResponse(e)
	}

	return resp
}

type balanceResponse struct {
	Income       []entryResponse `json:"income"`
	Expense      []entryResponse `json:"expense"`
	TotalIncome  string          `json:"total_income"`
	TotalExpense string          `json:"total_expense"`
	Net          string          `json:"net"`
	Negative     bool            `json:"negative"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toBalanceResponse(s *balance.Snapshot) balanceResponse {
	return balanceResponse{
		Income:       toResponseList(s.Income),
		Expense:      toResponseList(s.Expense),
		TotalIncome:  ledger.FormatAmount(s.TotalIncome),
		TotalExpense: ledger.FormatAmount(s.TotalExpense),
		Net:          ledger.FormatAmount(s.Net),
		Negative:     s.Negative(),
		UpdatedAt:    s.UpdatedAt,
	}
}
