package openaicompat

import "net/http"

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithName overrides the provider name reported by Name() (default "openai").
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient sets a custom HTTP client (timeouts, proxies, test transports).
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithOptions sets request-level options applied to every chat request.
func WithOptions(opts ...Option) ProviderOption {
	return func(p *Provider) { p.opts = opts }
}
