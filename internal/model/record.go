package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes the two record variants. Both share one table layout.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Table returns the table holding records of this kind.
func (k Kind) Table() string {
	switch k {
	case KindIncome:
		return "incomes"
	default:
		return "expenses"
	}
}

type Record struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CurrencyCode string          `db:"currency_code" json:"currency_code"`
	Attachment   *string         `db:"attachment" json:"attachment"` // File name in attachment storage, nil when none
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (r *Record) HasAttachment() bool {
	return r.Attachment != nil && *r.Attachment != ""
}
