package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-http-utils/headers"
	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

const maxBodySize = 1 << 16

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrTradeRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(ctx).Errorf("[handler] %v", err)
	} else {
		logger.FromContext(ctx).Infof("[handler] %v", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v interface{}) {
	bs, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeRaw(w, "application/json", bs)
}

func writeRaw(w http.ResponseWriter, contentType string, bs []byte) {
	w.Header().Set(headers.ContentType, contentType)
	_, _ = w.Write(bs)
}

func readBody(r *http.Request) ([]byte, error) {
	bs, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "can't read request body")
	}

	return bs, nil
}

func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}
