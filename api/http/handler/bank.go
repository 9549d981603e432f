package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/ledger"
)

type accountResponse struct {
	AccountNo string      `json:"accountNo"`
	Name      string      `json:"name"`
	Balance   json.Number `json:"balance"`
}

type balanceResponse struct {
	Balance json.Number `json:"balance"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type BankHandler struct {
	bank    *ledger.Bank
	streams *StreamHandler
}

func NewBankHandler(bank *ledger.Bank, streams *StreamHandler) *BankHandler {
	return &BankHandler{bank: bank, streams: streams}
}

// Open handles POST /bank/open with {"name": ...}.
func (h BankHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	acc, err := h.bank.OpenAccount(ctx, req.Name)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, accountResponse{acc.ID, acc.OwnerName, number(acc.Balance)})
}

// Transact handles POST /bank/transact/{accountNo} with {"name", "amount"}.
func (h BankHandler) Transact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountNo := mux.Vars(r)["accountNo"]

	body, err := readBody(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	req, err := domain.DecodeTransactRequest(body)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	balance, err := h.bank.Transact(ctx, accountNo, req.Name, req.Amount)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, balanceResponse{number(balance)})
}

// Balance handles GET /bank/balance/{accountNo}/{name}.
func (h BankHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	balance, err := h.bank.GetBalance(ctx, vars["accountNo"], vars["name"])
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, accountResponse{vars["accountNo"], vars["name"], number(balance)})
}

// Watch handles GET /bank/balance/watch/{accountNo} as an event stream of
// "balance" events.
func (h BankHandler) Watch(w http.ResponseWriter, r *http.Request) {
	h.streams.Serve(w, r, mux.Vars(r)["accountNo"])
}
