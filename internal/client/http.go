package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPClient keeps one fasthttp HostClient per downstream host. Both
// processor hosts are long-lived, so connections are pooled and
// reused across the process lifetime.
type HTTPClient struct {
	mu      sync.RWMutex
	clients map[string]*fasthttp.HostClient
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		clients: make(map[string]*fasthttp.HostClient),
	}
}

func (h *HTTPClient) getOrCreateClient(targetURL string) (*fasthttp.HostClient, *url.URL, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil || parsedURL.Host == "" {
		return nil, nil, fmt.Errorf("invalid URL: %s", targetURL)
	}

	host := parsedURL.Host

	h.mu.RLock()
	client, exists := h.clients[host]
	h.mu.RUnlock()
	if exists {
		return client, parsedURL, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if client, exists = h.clients[host]; exists {
		return client, parsedURL, nil
	}

	client = &fasthttp.HostClient{
		Addr:                      host,
		MaxConns:                  50,
		MaxIdleConnDuration:       30 * time.Second,
		MaxIdemponentCallAttempts: 1,
		ReadTimeout:               5 * time.Second,
		WriteTimeout:              5 * time.Second,
		MaxResponseBodySize:       4096,
		NoDefaultUserAgentHeader:  true,
	}
	h.clients[host] = client
	return client, parsedURL, nil
}

// PostPayment sends a JSON body to targetURL and returns the response
// status code. The timeout bounds the whole round trip so a hung
// downstream never stalls the worker loop indefinitely.
func (h *HTTPClient) PostPayment(targetURL string, jsonData []byte, timeout time.Duration) (int, error) {
	client, parsedURL, err := h.getOrCreateClient(targetURL)
	if err != nil {
		return 0, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(parsedURL.Path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.SetHost(parsedURL.Host)
	req.SetBody(jsonData)

	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}

	return resp.StatusCode(), nil
}

// GetHealth probes targetURL and reports the status code, response
// body and the measured round-trip duration.
func (h *HTTPClient) GetHealth(targetURL string, timeout time.Duration) (int, []byte, time.Duration, error) {
	client, parsedURL, err := h.getOrCreateClient(targetURL)
	if err != nil {
		return 0, nil, 0, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(parsedURL.Path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetHost(parsedURL.Host)

	start := time.Now()
	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return 0, nil, time.Since(start), fmt.Errorf("health check failed: %w", err)
	}
	elapsed := time.Since(start)

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return resp.StatusCode(), body, elapsed, nil
}

func (h *HTTPClient) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		client.CloseIdleConnections()
	}
}
