package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-http-utils/headers"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

const (
	ContentTypeEventStream = "text/event-stream"
	defaultEventName       = "message"
	maxLineSize            = 1 << 20
)

type sseSource struct {
	cli *resty.Client
}

// NewSSESource returns a Source reading server-sent events over HTTP.
func NewSSESource() Source {
	client := resty.New()
	client.SetHeaders(
		map[string]string{
			headers.Accept:       ContentTypeEventStream,
			headers.CacheControl: "no-cache",
		},
	)

	return &sseSource{cli: client}
}

func (s *sseSource) Connect(ctx context.Context, url string, h Handlers) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := s.cli.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(domain.ErrTransport, "can't GET %s: %v", url, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		cancel()
		if body != nil {
			_ = body.Close()
		}
		return nil, errors.Wrapf(
			domain.ErrTransport, "unexpected status %d from %s", resp.StatusCode(), url,
		)
	}

	handle := &sseHandle{cancel: cancel, body: body}
	go handle.read(h)

	return handle, nil
}

type sseHandle struct {
	cancel context.CancelFunc
	body   io.ReadCloser
	closed int32
	once   sync.Once
}

func (s *sseHandle) Close() error {
	var err error
	s.once.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		s.cancel()
		err = s.body.Close()
	})

	return err
}

func (s *sseHandle) read(h Handlers) {
	err := ReadEvents(s.body, func(msg Message) {
		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	})

	if atomic.LoadInt32(&s.closed) == 1 {
		return
	}
	_ = s.Close()

	if err != nil {
		if h.OnError != nil {
			h.OnError(errors.Wrap(domain.ErrTransport, err.Error()))
		}
		return
	}
	if h.OnClosed != nil {
		h.OnClosed()
	}
}

// ReadEvents parses a server-sent event stream from r, calling fn for every
// dispatched event. It returns nil on a clean EOF.
func ReadEvents(r io.Reader, fn func(Message)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var (
		name string
		data []string
	)

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				if name == "" {
					name = defaultEventName
				}
				fn(Message{Name: name, Data: strings.Join(data, "\n")})
			}
			name, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}

		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}

	return scanner.Err()
}

// WriteEvent writes one server-sent event frame to w.
func WriteEvent(w io.Writer, name, data string) error {
	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", name))
	}
	for _, line := range strings.Split(data, "\n") {
		sb.WriteString(fmt.Sprintf("data: %s\n", line))
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())

	return err
}
