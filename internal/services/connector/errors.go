package connector

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
)

var (
	rateLimitMarkers = []string{"too many requests", "rate limit", "429", "418", "10006", "10018"}
	authMarkers      = []string{"api key", "api-key", "signature", "10003", "10004", "10005", "33004", "unauthorized", "permission denied"}
	networkMarkers   = []string{"connection reset", "connection refused", "no such host", "broken pipe", "i/o timeout", "eof", "502", "503", "504"}
)

// classify maps vendor errors into the domain taxonomy. Already classified and
// unrecognised errors are returned unchanged.
func classify(err error) error {
	if err == nil || domain.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return classifyBinance(apiErr)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewError(domain.ErrNetwork, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewError(domain.ErrNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rateLimitMarkers):
		return domain.NewError(domain.ErrRateLimitExceeded, err)
	case containsAny(msg, authMarkers):
		return domain.NewError(domain.ErrAuthentication, err)
	case containsAny(msg, networkMarkers):
		return domain.NewError(domain.ErrNetwork, err)
	}
	return err
}

func classifyBinance(apiErr *common.APIError) error {
	switch {
	case apiErr.Code == -1003 || apiErr.Code == -1015:
		return domain.NewError(domain.ErrRateLimitExceeded, apiErr)
	case apiErr.Code == -2014 || apiErr.Code == -2015 || apiErr.Code == -1022 || apiErr.Code == -2008:
		return domain.NewError(domain.ErrAuthentication, apiErr)
	case apiErr.Code == -1000 || apiErr.Code == -1001 || apiErr.Code == -1007 || apiErr.Code == -1021:
		return domain.NewError(domain.ErrNetwork, apiErr)
	case apiErr.Code <= -1100 && apiErr.Code >= -1199:
		return domain.NewError(domain.ErrValidation, apiErr)
	}
	return apiErr
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
