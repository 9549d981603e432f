package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Wire shapes shared by the HTTP glue and the remote clients. Decimals are
// written as JSON numbers and accepted as numbers or strings.

type holdingJSON struct {
	Name          string          `json:"name"`
	BankAccountNo string          `json:"bankAccountNo"`
	Units         decimal.Decimal `json:"units"`
}

type holdingOut struct {
	Name          string      `json:"name"`
	BankAccountNo string      `json:"bankAccountNo"`
	Units         json.Number `json:"units"`
}

func EncodeHolding(h Holding) ([]byte, error) {
	return json.Marshal(holdingOut{h.Name, h.BankAccountNo, json.Number(h.Units.String())})
}

func DecodeHolding(data []byte) (Holding, error) {
	var h holdingJSON
	if err := json.Unmarshal(data, &h); err != nil {
		return Holding{}, errors.Wrap(err, "can't decode holding")
	}

	return Holding{Name: h.Name, BankAccountNo: h.BankAccountNo, Units: h.Units}, nil
}

func EncodeHoldings(hs []Holding) ([]byte, error) {
	out := make([]holdingOut, 0, len(hs))
	for _, h := range hs {
		out = append(out, holdingOut{h.Name, h.BankAccountNo, json.Number(h.Units.String())})
	}

	return json.Marshal(out)
}

func DecodeHoldings(data []byte) ([]Holding, error) {
	var in []holdingJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errors.Wrap(err, "can't decode holdings")
	}

	hs := make([]Holding, 0, len(in))
	for _, h := range in {
		hs = append(hs, Holding{Name: h.Name, BankAccountNo: h.BankAccountNo, Units: h.Units})
	}

	return hs, nil
}

// TransactRequest is the body of a bank transaction call.
type TransactRequest struct {
	Name   string
	Amount decimal.Decimal
}

type transactJSON struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type transactOut struct {
	Name   string      `json:"name"`
	Amount json.Number `json:"amount"`
}

func EncodeTransactRequest(r TransactRequest) ([]byte, error) {
	return json.Marshal(transactOut{r.Name, json.Number(r.Amount.String())})
}

func DecodeTransactRequest(data []byte) (TransactRequest, error) {
	var r transactJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return TransactRequest{}, errors.Wrap(err, "can't decode transaction")
	}

	return TransactRequest{Name: r.Name, Amount: r.Amount}, nil
}

type aggregateOut struct {
	Bitcoin json.Number `json:"bitcoin"`
	News    []string    `json:"news"`
}

// EncodeAggregate renders {"bitcoin": price, "news": [...]}.
func EncodeAggregate(a Aggregate) (string, error) {
	news := a.News
	if news == nil {
		news = []string{}
	}
	bs, err := json.Marshal(aggregateOut{json.Number(a.Price.String()), news})
	if err != nil {
		return "", errors.Wrap(err, "can't encode aggregate")
	}

	return string(bs), nil
}

type leaderboardOut struct {
	Name  string      `json:"name"`
	Value json.Number `json:"value"`
}

// EncodeLeaderboard renders [{"name": ..., "value": netWorth}, ...].
func EncodeLeaderboard(entries []LeaderboardEntry) (string, error) {
	out := make([]leaderboardOut, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardOut{e.Name, json.Number(e.NetWorth.String())})
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "can't encode leaderboard")
	}

	return string(bs), nil
}
