package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/sirupsen/logrus"
)

// NewTransport is tuned for outbound service-to-service communication.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// New wraps base (or a fresh client with NewTransport) in retryablehttp.
// Retries cover connection errors and 5xx/429 responses.
func New(base *http.Client, timeout time.Duration, retries int) *retryablehttp.Client {
	if base == nil {
		base = &http.Client{Transport: NewTransport()}
	}
	if timeout > 0 {
		base.Timeout = timeout
	}
	if retries < 0 {
		retries = 0
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = base
	client.RetryMax = retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{}
	return client
}

// leveledLogger routes retryablehttp logs through logrus.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	logger.Log.WithFields(toFields(keysAndValues)).Error(msg)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	logger.Log.WithFields(toFields(keysAndValues)).Warn(msg)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	logger.Log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
