package ledger

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

const (
	accountNoMin   = 1000000
	accountNoSpace = 9000000
)

var DefaultStartingBalance = decimal.NewFromInt(1000)

// snapshot is never modified after it has been published.
type snapshot map[string]domain.Account

func (s snapshot) clone() snapshot {
	cp := make(snapshot, len(s)+1)
	for k, v := range s {
		cp[k] = v
	}

	return cp
}

// patch is a guarded mutation. The owner test and the balance write are
// applied together against one snapshot.
type patch struct {
	accountID string
	owner     string
	delta     decimal.Decimal
}

func (p patch) apply(s snapshot) (snapshot, domain.Account, error) {
	acc, ok := s[p.accountID]
	if !ok {
		return nil, domain.Account{}, errors.Wrapf(domain.ErrNotFound, "account %s", p.accountID)
	}
	if acc.OwnerName != p.owner {
		return nil, domain.Account{}, errors.Wrapf(domain.ErrAuthorization, "account %s", p.accountID)
	}

	balance := acc.Balance.Add(p.delta)
	if balance.IsNegative() {
		return nil, domain.Account{}, errors.Wrapf(
			domain.ErrInsufficientFunds,
			"account %s has %s, requested %s", p.accountID, acc.Balance, p.delta,
		)
	}

	acc.Balance = balance
	next := s.clone()
	next[p.accountID] = acc

	return next, acc, nil
}

// Ledger keeps account balances in a copy-on-write snapshot. Writers are
// serialized by mu, readers load the current snapshot without locking.
type Ledger struct {
	mu              sync.Mutex
	current         atomic.Pointer[snapshot]
	startingBalance decimal.Decimal
	nextID          func() (int64, error)
}

func New(startingBalance decimal.Decimal) *Ledger {
	l := &Ledger{
		startingBalance: startingBalance,
		nextID:          randomAccountNo,
	}
	empty := make(snapshot)
	l.current.Store(&empty)

	return l
}

// WithIDGenerator replaces the account number source.
func (l *Ledger) WithIDGenerator(gen func() (int64, error)) *Ledger {
	l.nextID = gen
	return l
}

func randomAccountNo() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(accountNoSpace))
	if err != nil {
		return 0, errors.Wrap(err, "can't generate account number")
	}

	return accountNoMin + n.Int64(), nil
}

func (l *Ledger) load() snapshot {
	return *l.current.Load()
}

// OpenAccount creates an account with the starting balance under a fresh
// random account number.
func (l *Ledger) OpenAccount(ownerName string) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.load()

	var id string
	for {
		n, err := l.nextID()
		if err != nil {
			return domain.Account{}, err
		}
		id = strconv.FormatInt(n, 10)
		if _, taken := s[id]; !taken {
			break
		}
	}

	acc := domain.Account{
		ID:        id,
		OwnerName: ownerName,
		Balance:   l.startingBalance,
	}
	next := s.clone()
	next[id] = acc
	l.current.Store(&next)

	return acc, nil
}

// Transact adds delta to the balance of accountID when claimedOwner owns it
// and the result stays non-negative.
func (l *Ledger) Transact(
	accountID string,
	claimedOwner string,
	delta decimal.Decimal,
) (domain.TransactionEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, acc, err := patch{accountID, claimedOwner, delta}.apply(l.load())
	if err != nil {
		return domain.TransactionEvent{}, err
	}
	l.current.Store(&next)

	return domain.TransactionEvent{
		AccountID:  acc.ID,
		OwnerName:  acc.OwnerName,
		NewBalance: acc.Balance,
	}, nil
}

// GetBalance reads from the current snapshot and never blocks.
func (l *Ledger) GetBalance(accountID, claimedOwner string) (decimal.Decimal, error) {
	acc, ok := l.load()[accountID]
	if !ok {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrNotFound, "account %s", accountID)
	}
	if acc.OwnerName != claimedOwner {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrAuthorization, "account %s", accountID)
	}

	return acc.Balance, nil
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.load())
}
