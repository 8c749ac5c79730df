package edge

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spec-kit/reeltap/internal/observability"
	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

// Failure kinds reported to metrics.
const (
	failureUnavailable = "unavailable"
	failureTimeout     = "timeout"
)

// ProxyConfig configures forwarding to the single upstream.
type ProxyConfig struct {
	// UpstreamURL is the normalized base address, scheme://host[:port].
	UpstreamURL string
	// Prefix is the API mount point, e.g. "/api".
	Prefix      string
	Timeout     time.Duration
	DialTimeout time.Duration
}

// Proxy forwards API requests to the upstream. The edge never looks inside cookies or
// tokens; it only adjusts Set-Cookie attributes on the way back.
type Proxy struct {
	upstream string
	prefix   string
	timeout  time.Duration
	client   *fasthttp.Client
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewProxy builds a proxy with its own client. Path normalization is disabled so the
// upstream sees the request URI byte for byte.
func NewProxy(cfg ProxyConfig, logger *zap.Logger, metrics *observability.Metrics) *Proxy {
	return &Proxy{
		upstream: strings.TrimRight(cfg.UpstreamURL, "/"),
		prefix:   cfg.Prefix,
		timeout:  cfg.Timeout,
		client:   newUpstreamClient(cfg.DialTimeout),
		logger:   logger,
		metrics:  metrics,
	}
}

func newUpstreamClient(dialTimeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		DisablePathNormalizing:   true,
		NoDefaultUserAgentHeader: true,
		MaxIdleConnDuration:      30 * time.Second,
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, dialTimeout)
		},
	}
}

// Upstream returns the address requests are forwarded to.
func (p *Proxy) Upstream() string {
	return p.upstream
}

// Handler forwards the current request. fasthttp offers no cancellation when the
// browser goes away; the upstream call is abandoned at the proxy deadline instead.
func (p *Proxy) Handler(c *fiber.Ctx) error {
	target := p.upstream + ForwardURI(p.prefix, c.OriginalURL())
	setForwardedHeaders(c)

	if err := proxy.DoTimeout(c, target, p.timeout, p.client); err != nil {
		return p.fail(c, err)
	}
	RewriteSetCookies(&c.Response().Header)
	return nil
}

// ForwardURI returns the URI to request upstream. It is the original request URI;
// the prefix is put back when a mount stripped it.
func ForwardURI(prefix, originalURI string) string {
	if originalURI == "" {
		originalURI = "/"
	}
	if prefix == "" || originalURI == prefix || strings.HasPrefix(originalURI, prefix+"/") || strings.HasPrefix(originalURI, prefix+"?") {
		return originalURI
	}
	if !strings.HasPrefix(originalURI, "/") {
		originalURI = "/" + originalURI
	}
	return prefix + originalURI
}

func setForwardedHeaders(c *fiber.Ctx) {
	req := &c.Request().Header
	clientIP := c.IP()
	if prior := string(req.Peek(fiber.HeaderXForwardedFor)); prior != "" {
		clientIP = prior + ", " + clientIP
	}
	req.Set(fiber.HeaderXForwardedFor, clientIP)
	req.Set(fiber.HeaderXForwardedHost, c.Hostname())
	req.Set(fiber.HeaderXForwardedProto, c.Protocol())
}

func (p *Proxy) fail(c *fiber.Ctx, err error) error {
	res := c.Response()
	res.Header.DelAllCookies()
	res.Header.Del(fiber.HeaderContentEncoding)
	res.ResetBody()

	kind := classify(err)
	p.metrics.RecordUpstreamFailure(kind)
	p.logger.Warn("upstream request failed",
		zap.String("kind", kind),
		zap.String("upstream", p.upstream),
		zap.String("path", c.Path()),
		zap.Error(err))

	if kind == failureTimeout {
		return apperrors.NewUpstreamTimeout(err)
	}
	return apperrors.NewUpstreamUnavailable(err)
}

// classify separates "could not reach the upstream" from "the upstream did not answer
// in time". A dial timeout is the former.
func classify(err error) string {
	if errors.Is(err, fasthttp.ErrDialTimeout) {
		return failureUnavailable
	}
	if errors.Is(err, fasthttp.ErrTimeout) {
		return failureTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failureUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return failureUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}
	return failureUnavailable
}
