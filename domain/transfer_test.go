package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransactRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "number", body: `{"name":"Alice","amount":-12.5}`, want: "-12.5"},
		{name: "string", body: `{"name":"Alice","amount":"100"}`, want: "100"},
		{name: "garbage", body: `{"name":"Alice","amount":"x"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTransactRequest([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Alice", got.Name)
			assert.Equal(t, tt.want, got.Amount.String())
		})
	}
}

func TestEncodeTransactRequest(t *testing.T) {
	bs, err := EncodeTransactRequest(TransactRequest{Name: "Bob", Amount: decimal.RequireFromString("-505.25")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bob","amount":-505.25}`, string(bs))
}

func TestHoldingsWireFormat(t *testing.T) {
	hs := []Holding{
		{Name: "Alice", BankAccountNo: "1234567", Units: decimal.RequireFromString("0.5")},
		{Name: "Bob", BankAccountNo: "7654321", Units: decimal.NewFromInt(3)},
	}

	bs, err := EncodeHoldings(hs)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"name":"Alice","bankAccountNo":"1234567","units":0.5},{"name":"Bob","bankAccountNo":"7654321","units":3}]`,
		string(bs),
	)

	decoded, err := DecodeHoldings(bs)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].Units.Equal(hs[0].Units))
	assert.Equal(t, "7654321", decoded[1].BankAccountNo)
}

func TestEncodeAggregateAndLeaderboard(t *testing.T) {
	agg, err := EncodeAggregate(Aggregate{Price: decimal.RequireFromString("1.05")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bitcoin":1.05,"news":[]}`, agg)

	lb, err := EncodeLeaderboard([]LeaderboardEntry{{Name: "Alice", NetWorth: decimal.NewFromInt(1500)}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Alice","value":1500}]`, lb)
}
