package http

import (
	"time"

	"github.com/shopspring/decimal"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/storage"
)

type UserResponse struct {
	Username  string `json:"username"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

type AccountResponse struct {
	Username string `json:"username"`
	Balance  string `json:"balance"`
	Active   bool   `json:"active"`
}

type TransactionResponse struct {
	ID           string                 `json:"id"`
	Amount       string                 `json:"amount"`
	Type         domain.TransactionType `json:"type"`
	Counterparty string                 `json:"counterparty,omitempty"`
	CreatedAt    string                 `json:"created_at"`
}

type ExportResponse struct {
	ID           string              `json:"id"`
	Status       domain.ExportStatus `json:"status"`
	Location     string              `json:"location,omitempty"`
	DownloadURL  string              `json:"download_url,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    string              `json:"created_at"`
	CompletedAt  *string             `json:"completed_at,omitempty"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		Username:  user.Username,
		Active:    user.Active,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func accountToResponse(account domain.Account) AccountResponse {
	return AccountResponse{
		Username: account.Username,
		Balance:  formatAmount(account.Balance),
		Active:   account.Active,
	}
}

func transactionToResponse(tx domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:           tx.ID,
		Amount:       formatAmount(tx.Amount),
		Type:         tx.Type,
		Counterparty: tx.Counterparty,
		CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
	}
}

func exportToResponse(job domain.StatementExport, downloadURL string) ExportResponse {
	resp := ExportResponse{
		ID:           job.ID,
		Status:       job.Status,
		Location:     job.Location,
		DownloadURL:  downloadURL,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		v := job.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &v
	}
	return resp
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
