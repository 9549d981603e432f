package exchange

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

type errorProcessor interface {
	Decode(r *fasthttp.Response) error
}

// ErrorProcessor turns a non-200 response into an error wrapping
// domain.ErrPartialData. Messages are looked up by status code.
type ErrorProcessor struct {
	messages map[string]string
}

func NewErrorProcessor(messages map[string]string) *ErrorProcessor {
	return &ErrorProcessor{messages: messages}
}

func (e *ErrorProcessor) Decode(r *fasthttp.Response) error {
	code := strconv.Itoa(r.StatusCode())
	msg, ok := e.messages[code]
	if !ok {
		msg = string(r.Body())
	}

	return errors.Wrapf(domain.ErrPartialData, "exchange responded %s: %s", code, msg)
}
