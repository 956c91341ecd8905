package exporter

import (
	"bytes"
	"encoding/json"
	"time"

	"tiny-bank/internal/domain"
)

// Statement is the archived document: the account snapshot plus its full log.
type Statement struct {
	Username     string           `json:"username"`
	Balance      string           `json:"balance"`
	Active       bool             `json:"active"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Transactions []StatementEntry `json:"transactions"`
}

type StatementEntry struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	Counterparty string    `json:"counterparty,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func renderStatement(account *domain.Account, txs []domain.Transaction, generatedAt time.Time) ([]byte, error) {
	doc := Statement{
		Username:     account.Username,
		Balance:      account.Balance.StringFixed(2),
		Active:       account.Active,
		GeneratedAt:  generatedAt,
		Transactions: make([]StatementEntry, len(txs)),
	}
	for i, tx := range txs {
		doc.Transactions[i] = StatementEntry{
			ID:           tx.ID,
			Type:         string(tx.Type),
			Amount:       tx.Amount.StringFixed(2),
			Counterparty: tx.Counterparty,
			CreatedAt:    tx.CreatedAt,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
