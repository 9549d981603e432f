package centrifuge

import (
	"context"
	"encoding/json"

	"github.com/centrifugal/gocent/v3"
	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

// MessageData is one Centrifugo publication. Data that is not a JSON value
// is published as a JSON string.
type MessageData struct {
	Channel string `json:"channel"`
	Data    string `json:"data"`
}

type Centrifuge interface {
	BatchPublish(ctx context.Context, messages []MessageData) error
	Publish(ctx context.Context, message MessageData) error
}

type centrifuge struct {
	Client *gocent.Client
}

func New(cfg infra.CentrifugeConfig) Centrifuge {
	clientConfig := gocent.Config{
		Addr: "http://" + cfg.Host + "/api",
		Key:  cfg.Token,
	}

	return &centrifuge{
		Client: gocent.New(clientConfig),
	}
}

func (c centrifuge) Publish(ctx context.Context, message MessageData) error {
	log := logger.FromContext(ctx).WithField("channel", message.Channel)
	result, err := c.Client.Publish(ctx, message.Channel, payload(message.Data))
	if err != nil {
		log.Errorf("Error calling publish: %v", err)
		return errors.Wrapf(err, "can't publish into %s", message.Channel)
	}
	log.Debugf(
		"Publish into channel %s successful, stream position {offset: %d, epoch: %s}",
		message.Channel, result.Offset, result.Epoch,
	)

	return nil
}

func (c centrifuge) BatchPublish(ctx context.Context, messages []MessageData) error {
	log := logger.FromContext(ctx)
	pipe := c.Client.Pipe()
	for _, message := range messages {
		if err := pipe.AddPublish(message.Channel, payload(message.Data)); err != nil {
			return errors.Wrap(err, "can't add publish command")
		}
	}
	replies, err := c.Client.SendPipe(ctx, pipe)
	if err != nil {
		return errors.Wrap(err, "can't send pipe")
	}
	for _, reply := range replies {
		if reply.Error != nil {
			log.Errorf("Error in pipe reply: %v", reply.Error)
		}
	}
	log.Debugf("Sent %d publish commands in one HTTP request", len(replies))

	return nil
}

// payload returns data as a JSON value. Centrifugo rejects anything else and
// gocent fails the whole pipe on it.
func payload(data string) []byte {
	if json.Valid([]byte(data)) {
		return []byte(data)
	}
	bs, _ := json.Marshal(data)

	return bs
}
