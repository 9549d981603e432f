package ledger

import (
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

func TestLedger_AliceScenario(t *testing.T) {
	l := New(DefaultStartingBalance)

	acc, err := l.OpenAccount("Alice")
	require.NoError(t, err)

	balance, err := l.GetBalance(acc.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", balance.String())

	ev, err := l.Transact(acc.ID, "Alice", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "1100", ev.NewBalance.String())
	assert.Equal(t, acc.ID, ev.AccountID)
	assert.Equal(t, "Alice", ev.OwnerName)

	_, err = l.Transact(acc.ID, "Bob", decimal.NewFromInt(-100))
	assert.True(t, errors.Is(err, domain.ErrAuthorization))

	_, err = l.Transact(acc.ID, "Alice", decimal.NewFromInt(-2000))
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

	balance, err = l.GetBalance(acc.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "1100", balance.String())
}

func TestLedger_Errors(t *testing.T) {
	l := New(DefaultStartingBalance)
	acc, err := l.OpenAccount("Alice")
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name: "balance of unknown account",
			call: func() error {
				_, err := l.GetBalance("42", "Alice")
				return err
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "balance with wrong owner",
			call: func() error {
				_, err := l.GetBalance(acc.ID, "alice")
				return err
			},
			wantErr: domain.ErrAuthorization,
		},
		{
			name: "transact on unknown account",
			call: func() error {
				_, err := l.Transact("42", "Alice", decimal.NewFromInt(1))
				return err
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "transact with wrong owner does not mutate",
			call: func() error {
				_, err := l.Transact(acc.ID, "Mallory", decimal.NewFromInt(500))
				return err
			},
			wantErr: domain.ErrAuthorization,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	balance, err := l.GetBalance(acc.ID, "Alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(DefaultStartingBalance))
}

func TestLedger_BalanceEqualsAcceptedDeltas(t *testing.T) {
	l := New(DefaultStartingBalance)
	acc, err := l.OpenAccount("Alice")
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(7))
	expected := DefaultStartingBalance

	for i := 0; i < 1000; i++ {
		delta := decimal.New(rnd.Int63n(60000)-30000, -2)
		ev, err := l.Transact(acc.ID, "Alice", delta)
		if err != nil {
			require.True(t, errors.Is(err, domain.ErrInsufficientFunds))
			require.True(t, expected.Add(delta).IsNegative())
			continue
		}
		expected = expected.Add(delta)
		require.True(t, ev.NewBalance.Equal(expected))
		require.False(t, ev.NewBalance.IsNegative())
	}

	balance, err := l.GetBalance(acc.ID, "Alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(expected))
}

func TestLedger_ConcurrentTransactNeverNegative(t *testing.T) {
	l := New(DefaultStartingBalance)
	acc, err := l.OpenAccount("Alice")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = decimal.Zero
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delta := decimal.NewFromInt(-30)
			if i%4 == 0 {
				delta = decimal.NewFromInt(10)
			}
			if _, err := l.Transact(acc.ID, "Alice", delta); err == nil {
				mu.Lock()
				accepted = accepted.Add(delta)
				mu.Unlock()
			}
			if b, err := l.GetBalance(acc.ID, "Alice"); err == nil {
				assert.False(t, b.IsNegative())
			}
		}(i)
	}
	wg.Wait()

	balance, err := l.GetBalance(acc.ID, "Alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(DefaultStartingBalance.Add(accepted)))
	assert.False(t, balance.IsNegative())
}

func TestLedger_OpenAccountDistinctIDs(t *testing.T) {
	l := New(DefaultStartingBalance)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc, err := l.OpenAccount("user" + strconv.Itoa(i))
			assert.NoError(t, err)
			ids <- acc.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		num, err := strconv.Atoi(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, num, accountNoMin)
		assert.Less(t, num, accountNoMin+accountNoSpace)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, l.Len())
}

func TestLedger_OpenAccountRetriesOnCollision(t *testing.T) {
	seq := []int64{1234567, 1234567, 1234567, 7654321}
	calls := 0
	l := New(DefaultStartingBalance).WithIDGenerator(func() (int64, error) {
		n := seq[calls]
		calls++
		return n, nil
	})

	first, err := l.OpenAccount("Alice")
	require.NoError(t, err)
	second, err := l.OpenAccount("Bob")
	require.NoError(t, err)

	assert.Equal(t, "1234567", first.ID)
	assert.Equal(t, "7654321", second.ID)
	assert.Equal(t, 4, calls)
}

func TestLedger_OpenAccountGeneratorFailure(t *testing.T) {
	l := New(DefaultStartingBalance).WithIDGenerator(func() (int64, error) {
		return 0, errors.New("entropy exhausted")
	})

	_, err := l.OpenAccount("Alice")
	require.Error(t, err)
	assert.Equal(t, 0, l.Len())
}
