package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// forwardedRequestHeaders are copied from the client to the storefront API. Cookies
// carry the session token, and the webhook needs its signature header.
var forwardedRequestHeaders = []string{
	"Accept",
	"Authorization",
	"Content-Type",
	"Cookie",
	"Stripe-Signature",
}

// forwardedResponseHeaders are copied back to the client.
var forwardedResponseHeaders = []string{
	"Cache-Control",
	"Content-Disposition",
	"Content-Type",
	"Last-Modified",
	"Set-Cookie",
}

type ServiceProxy struct {
	baseURL  string
	client   *http.Client
	upgrades *httputil.ReverseProxy
}

func NewServiceProxy(baseURL string, client *http.Client) (*ServiceProxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", baseURL)
	}

	return &ServiceProxy{
		baseURL: baseURL,
		client:  client,
		upgrades: &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
			},
		},
	}, nil
}

// ForwardRequest replays r against the upstream at path, keeping the query string.
func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	for _, name := range forwardedRequestHeaders {
		for _, v := range r.Header.Values(name) {
			req.Header.Add(name, v)
		}
	}

	return p.client.Do(req)
}

// Upgrade hands a websocket handshake to the upstream and splices the connection.
func (p *ServiceProxy) Upgrade(w http.ResponseWriter, r *http.Request) {
	p.upgrades.ServeHTTP(w, r)
}

func copyResponseHeaders(dst, src http.Header) {
	for _, name := range forwardedResponseHeaders {
		for _, v := range src.Values(name) {
			dst.Add(name, v)
		}
	}
}
