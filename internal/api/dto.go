package api

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/service"
)

type listResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Count: len(items), Results: items}
}

type accountResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Users []int64 `json:"users"`
}

type accountDetailResponse struct {
	accountResponse
	Transactions []transactionResponse `json:"transactions"`
	TotalBalance string                `json:"total_balance"`
}

type transactionResponse struct {
	ID              int64  `json:"id"`
	Account         int64  `json:"account"`
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	TransactionType string `json:"transaction_type"`
}

type membershipResponse struct {
	ID              int64  `json:"id"`
	User            int64  `json:"user"`
	Account         int64  `json:"account"`
	PermissionLevel string `json:"permission_level"`
}

type userTransactionsResponse struct {
	listResponse[transactionResponse]
	User         int64  `json:"user"`
	TotalBalance string `json:"total_balance"`
}

func toAccount(a domain.Account) accountResponse {
	users := a.Users
	if users == nil {
		users = []int64{}
	}
	return accountResponse{ID: a.ID, Name: a.Name, Users: users}
}

func toAccounts(in []domain.Account) []accountResponse {
	out := make([]accountResponse, len(in))
	for i, a := range in {
		out[i] = toAccount(a)
	}
	return out
}

func toDetails(d service.AccountDetails) accountDetailResponse {
	return accountDetailResponse{
		accountResponse: toAccount(d.Account),
		Transactions:    toTransactions(d.Transactions),
		TotalBalance:    domain.FormatAmount(d.TotalBalance),
	}
}

func toTransaction(t domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Account:         t.AccountID,
		Amount:          domain.FormatAmount(t.Amount),
		Date:            t.Date.Format(domain.DateLayout),
		TransactionType: string(t.Type),
	}
}

func toTransactions(in []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(in))
	for i, t := range in {
		out[i] = toTransaction(t)
	}
	return out
}

func toMembership(m domain.Membership) membershipResponse {
	return membershipResponse{ID: m.ID, User: m.UserID, Account: m.AccountID, PermissionLevel: string(m.Role)}
}

func toMemberships(in []domain.Membership) []membershipResponse {
	out := make([]membershipResponse, len(in))
	for i, m := range in {
		out[i] = toMembership(m)
	}
	return out
}

// accountRequest serves create and update. On update, absent fields are
// left unchanged.
type accountRequest struct {
	Name            *string  `json:"name"`
	Users           *[]int64 `json:"users"`
	PermissionLevel string   `json:"permission_level"`
}

// transactionRequest takes amount as either a JSON string or a number.
type transactionRequest struct {
	Account         int64           `json:"account"`
	Amount          json.RawMessage `json:"amount"`
	Date            string          `json:"date"`
	TransactionType string          `json:"transaction_type"`
}

func (req transactionRequest) input() (service.TransactionInput, error) {
	raw := string(bytes.TrimSpace(req.Amount))
	if raw == "" || raw == "null" {
		return service.TransactionInput{}, domain.Validationf("amount is required")
	}
	amount, err := domain.ParseAmount(strings.Trim(raw, `"`))
	if err != nil {
		return service.TransactionInput{}, err
	}
	if req.Date == "" {
		return service.TransactionInput{}, domain.Validationf("date is required")
	}
	d, err := domain.ParseDate(req.Date)
	if err != nil {
		return service.TransactionInput{}, err
	}
	kind, err := domain.ParseTransactionType(req.TransactionType)
	if err != nil {
		return service.TransactionInput{}, err
	}
	return service.TransactionInput{AccountID: req.Account, Amount: amount, Date: d, Type: kind}, nil
}

type membershipRequest struct {
	User            int64  `json:"user"`
	PermissionLevel string `json:"permission_level"`
}

// membershipBatch accepts either one membership object or an array of them.
type membershipBatch []membershipRequest

func (b *membershipBatch) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var one membershipRequest
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*b = membershipBatch{one}
		return nil
	}
	var many []membershipRequest
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*b = many
	return nil
}

func (b membershipBatch) assignments() ([]domain.Assignment, error) {
	out := make([]domain.Assignment, len(b))
	for i, m := range b {
		role, err := domain.ParseRole(m.PermissionLevel)
		if err != nil {
			return nil, err
		}
		out[i] = domain.Assignment{UserID: m.User, Role: role}
	}
	return out, nil
}

type roleRequest struct {
	PermissionLevel string `json:"permission_level"`
}
