package tools

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-go-golems/agentic-research/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	VerifyURLName        = "verify_url"
	VerifyURLDescription = "Verify if a URL or HTTP/HTTPS API endpoint exists and is accessible. " +
		"Returns the status code, whether the URL is accessible, the response time and the redirect target."

	verifyUserAgent = "Mozilla/5.0 (Research Bot) URL Verification Tool"
	maxRedirects    = 30
	maxTitleBytes   = 512 * 1024
)

var errTooManyRedirects = errors.New("too many redirects")

type VerifyURLInput struct {
	URL string `json:"url" jsonschema:"required,description=The URL to verify (must be properly formatted with http:// or https://)"`
}

// URLVerification is the tool result. Nullable fields are pointers so that
// the model sees explicit nulls.
type URLVerification struct {
	Success           bool     `json:"success"`
	StatusCode        *int     `json:"status_code"`
	Error             *string  `json:"error"`
	Accessible        bool     `json:"accessible"`
	ResponseTimeMS    *float64 `json:"response_time_ms"`
	FinalURL          *string  `json:"final_url,omitempty"`
	StatusDescription string   `json:"status_description,omitempty"`
	Title             string   `json:"title,omitempty"`
}

func failed(message string) *URLVerification {
	return &URLVerification{Error: &message}
}

type Verifier struct {
	client  *http.Client
	policy  security.URLPolicy
	timeout time.Duration
}

type VerifierOption func(*Verifier)

func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.client = c
	}
}

// WithURLPolicy replaces the policy checked before any request is made.
func WithURLPolicy(p security.URLPolicy) VerifierOption {
	return func(v *Verifier) {
		v.policy = p
	}
}

func WithTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.timeout = d
	}
}

func NewVerifier(options ...VerifierOption) *Verifier {
	ret := &Verifier{
		client:  &http.Client{},
		policy:  security.PublicWeb,
		timeout: 10 * time.Second,
	}
	for _, o := range options {
		o(ret)
	}
	// copy so the redirect limit does not leak into a shared client
	c := *ret.client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}
	ret.client = &c
	return ret
}

// Verify checks that in.URL answers. HEAD is tried first, GET when the
// server does not allow HEAD. Failures are reported in the result, the
// returned error is always nil.
func (v *Verifier) Verify(ctx context.Context, in VerifyURLInput) (*URLVerification, error) {
	if _, err := v.policy.Check(in.URL); err != nil {
		return failed(err.Error()), nil
	}

	start := time.Now()
	resp, err := v.do(ctx, http.MethodHead, in.URL)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		_ = resp.Body.Close()
		start = time.Now()
		resp, err = v.do(ctx, http.MethodGet, in.URL)
	}
	if err != nil {
		log.Debug().Err(err).Str("url", in.URL).Msg("URL verification failed")
		return failed(describeRequestError(err)), nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	elapsed := math.Round(float64(time.Since(start).Microseconds())/10) / 100

	status := resp.StatusCode
	ret := &URLVerification{
		Success:           true,
		StatusCode:        &status,
		Accessible:        status >= 200 && status < 400,
		ResponseTimeMS:    &elapsed,
		StatusDescription: resp.Status,
	}
	if final := resp.Request.URL.String(); final != in.URL {
		ret.FinalURL = &final
	}
	if resp.Request.Method == http.MethodGet {
		ret.Title = pageTitle(resp)
	}
	return ret, nil
}

func (v *Verifier) do(ctx context.Context, method, url string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", verifyUserAgent)
	resp, err := v.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func pageTitle(resp *http.Response) string {
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxTitleBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func describeRequestError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, errTooManyRedirects):
		return "Too many redirects - URL redirect chain exceeded maximum limit"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "Request timeout - URL took longer than 10 seconds to respond"
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return "Connection error - unable to reach the URL (DNS resolution failed or server unreachable)"
	}
	return "Request failed: " + err.Error()
}
