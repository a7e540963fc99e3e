// Package urlfetch implements the URL-download capability used by the
// URL-download flavor of a file transfer session: a single whole-body
// GET, not resumed across restarts, with its own timeout, TLS, and
// redirect policy independent of the platform-upload transport.
package urlfetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/wolkabout/filelink-go/internal/ferrors"
	"github.com/wolkabout/filelink-go/internal/logging"
	"github.com/wolkabout/filelink-go/internal/protocol"
)

// urlPattern is the exact validation regex a URL must match.
var urlPattern = regexp.MustCompile(`^https?://(www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)$`)

// StatusFunc is invoked on every status transition a Downloader makes.
// filename is only meaningful once known (may be empty until then).
type StatusFunc func(status protocol.TransferStatus, err protocol.TransferError, filename string)

// Downloader is the URL-download capability.
type Downloader interface {
	Status() protocol.TransferStatus
	Name() string
	Bytes() []byte
	Download(ctx context.Context, url string, onStatus StatusFunc)
	Abort()
}

// ClientOptions configures the underlying transport. A zero Timeout
// falls back to 60s and an empty UserAgent to "filelink-go/dev"; the
// TLS 1.2 floor always applies. A zero TLSVerify skips certificate
// verification.
type ClientOptions struct {
	Timeout      time.Duration
	UserAgent    string
	TLSVerify    bool // false skips certificate verification
	MaxRedirects int
	Log          *logging.Logger // optional; nil disables failure logging
}

// HTTPDownloader is the HTTP(S) implementation of Downloader.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	log       *logging.Logger

	status protocol.TransferStatus
	name   string
	data   []byte
	abort  chan struct{}
}

// warnf logs a failed download attempt with its URL sanitized, if a
// logger was configured.
func (d *HTTPDownloader) warnf(url string, format string, a ...any) {
	if d.log == nil {
		return
	}
	args := append([]any{logging.SanitizeURL(url)}, a...)
	d.log.Warnf("url download %s: "+format, args...)
}

// NewHTTPDownloader builds a Downloader from opts (the Network
// settings surfaced through internal/config).
func NewHTTPDownloader(opts ClientOptions) *HTTPDownloader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !opts.TLSVerify,
		},
	}
	client := &http.Client{Transport: tr, Timeout: timeout}
	if opts.MaxRedirects > 0 {
		max := opts.MaxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return errors.New("urlfetch: stopped after exceeding max_redirects")
			}
			return nil
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "filelink-go/dev"
	}

	return &HTTPDownloader{
		client:    client,
		userAgent: ua,
		log:       opts.Log,
		status:    protocol.StatusFileTransfer,
		abort:     make(chan struct{}),
	}
}

func (d *HTTPDownloader) Status() protocol.TransferStatus { return d.status }
func (d *HTTPDownloader) Name() string                    { return d.name }
func (d *HTTPDownloader) Bytes() []byte                    { return d.data }

// Abort is safe to call in any state. If the download
// has not yet reached FILE_READY it is left in ABORTED.
func (d *HTTPDownloader) Abort() {
	select {
	case <-d.abort:
	default:
		close(d.abort)
	}
	if d.status != protocol.StatusFileReady {
		d.status = protocol.StatusAborted
	}
}

// Download fetches url's body in one request and reports the result
// through onStatus.
func (d *HTTPDownloader) Download(ctx context.Context, url string, onStatus StatusFunc) {
	if !urlPattern.MatchString(url) {
		d.warnf(url, "does not match the allowed pattern")
		d.status = protocol.StatusErrorTransfer
		onStatus(d.status, protocol.TransferErrorMalformedURL, "")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.warnf(url, "building request: %v", err)
		d.status = protocol.StatusErrorTransfer
		onStatus(d.status, protocol.TransferErrorMalformedURL, "")
		return
	}
	req.Header.Set("User-Agent", d.userAgent)

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := d.client.Do(req)
		done <- result{resp, err}
	}()

	var res result
	select {
	case <-d.abort:
		return
	case res = <-done:
	}

	if res.err != nil {
		d.warnf(url, "%s", ferrors.Network(res.err).Message)
		d.status = protocol.StatusErrorTransfer
		onStatus(d.status, protocol.TransferErrorMalformedURL, "")
		return
	}
	defer res.resp.Body.Close()

	if res.resp.StatusCode != http.StatusOK {
		d.warnf(url, "unexpected status %d", res.resp.StatusCode)
		d.status = protocol.StatusErrorTransfer
		onStatus(d.status, protocol.TransferErrorMalformedURL, "")
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, res.resp.Body); err != nil {
		d.warnf(url, "%s", ferrors.Network(err).Message)
		d.status = protocol.StatusErrorTransfer
		onStatus(d.status, protocol.TransferErrorMalformedURL, "")
		return
	}

	select {
	case <-d.abort:
		return
	default:
	}

	d.data = buf.Bytes()
	d.name = filenameFromURL(url, d.data)
	d.status = protocol.StatusFileReady
	onStatus(d.status, protocol.TransferErrorNone, d.name)
}

// filenameFromURL extracts the last path segment before any "?"; if
// that is empty, it falls back to the lowercase hex SHA-256 of data.
func filenameFromURL(url string, data []byte) string {
	withoutQuery := url
	if i := strings.IndexByte(withoutQuery, '?'); i >= 0 {
		withoutQuery = withoutQuery[:i]
	}
	if i := strings.Index(withoutQuery, "://"); i >= 0 {
		withoutQuery = withoutQuery[i+3:]
	}
	if i := strings.LastIndexByte(withoutQuery, '/'); i >= 0 && i < len(withoutQuery)-1 {
		return withoutQuery[i+1:]
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
