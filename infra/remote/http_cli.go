package remote

import (
	"context"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

const defaultTimeout = 4 * time.Second
const defaultRetryNum = 2

// Caller is the outbound request/response capability.
type Caller interface {
	Post(ctx context.Context, url string, body interface{}) (int, []byte, error)
	Get(ctx context.Context, url string) (int, []byte, error)
}

// Client performs JSON calls to peer services. Non-2xx statuses are returned
// to the caller as is, only transport failures become errors. Get is retried,
// Post is sent exactly once since a timed out POST may have been applied.
type Client struct {
	cli  *resty.Client
	once *resty.Client
}

var _ Caller = new(Client)

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		cli:  newResty(timeout).SetRetryCount(defaultRetryNum),
		once: newResty(timeout).SetRetryCount(0),
	}
}

func newResty(timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeaders(
		map[string]string{
			headers.Accept:      "application/json",
			headers.ContentType: "application/json",
		},
	)

	return client
}

func (c *Client) Post(ctx context.Context, url string, body interface{}) (int, []byte, error) {
	resp, err := c.once.R().
		SetContext(ctx).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, nil, errors.Wrapf(domain.ErrTransport, "can't do POST request for %s: %v", url, err)
	}

	return resp.StatusCode(), resp.Body(), nil
}

func (c *Client) Get(ctx context.Context, url string) (int, []byte, error) {
	resp, err := c.cli.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return 0, nil, errors.Wrapf(domain.ErrTransport, "can't do GET request for %s: %v", url, err)
	}

	return resp.StatusCode(), resp.Body(), nil
}
