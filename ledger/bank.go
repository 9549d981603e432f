package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

// Bank exposes the ledger to request handlers and announces every accepted
// transaction on the account's key. Notifications follow the ledger order:
// txMu covers the mutation and its publish.
type Bank struct {
	txMu         sync.Mutex
	ledger       *Ledger
	eventsBroker domain.EventsBroker
}

func NewBank(ledger *Ledger, eventsBroker domain.EventsBroker) *Bank {
	return &Bank{
		ledger:       ledger,
		eventsBroker: eventsBroker,
	}
}

func (b *Bank) OpenAccount(ctx context.Context, ownerName string) (domain.Account, error) {
	acc, err := b.ledger.OpenAccount(ownerName)
	if err != nil {
		logger.FromContext(ctx).WithField("name", ownerName).
			Errorf("[Bank.OpenAccount] Can't open account: %v", err)
		return domain.Account{}, err
	}

	logger.FromContext(ctx).WithField("accountNo", acc.ID).
		Infof("[Bank.OpenAccount] Account opened for %s.", ownerName)

	return acc, nil
}

func (b *Bank) Transact(
	ctx context.Context,
	accountID string,
	ownerName string,
	amount decimal.Decimal,
) (decimal.Decimal, error) {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	txEvent, err := b.ledger.Transact(accountID, ownerName, amount)
	if err != nil {
		logger.FromContext(ctx).WithField("accountNo", accountID).
			WithField("amount", amount.String()).
			Infof("[Bank.Transact] Rejected: %v", err)
		return decimal.Decimal{}, err
	}

	b.eventsBroker.Publish(
		txEvent.AccountID,
		domain.NewEvent(ctx, domain.EvNameBalance, txEvent.NewBalance.String()),
	)

	return txEvent.NewBalance, nil
}

func (b *Bank) GetBalance(
	_ context.Context,
	accountID string,
	ownerName string,
) (decimal.Decimal, error) {
	return b.ledger.GetBalance(accountID, ownerName)
}

// Watch subscribes h to balance changes of accountID.
func (b *Bank) Watch(accountID string, h domain.Handle) domain.Subscription {
	return b.eventsBroker.Subscribe(accountID, h)
}
