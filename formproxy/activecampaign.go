// Package formproxy forwards marketing form submissions from the browser to
// the ActiveCampaign v3 API, keeping the API token on the server side.
package formproxy

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/coffyg/octosite"
)

const (
	// DefaultPrefix is the path prefix stripped before forwarding.
	DefaultPrefix = "/ac/"

	apiPath            = "/api/3/"
	defaultTimeout     = 10 * time.Second
	defaultMaxBodySize = 64 * 1024
	allowedMethods     = "GET, HEAD, POST, PUT, OPTIONS"
)

// Config configures the proxy.
type Config struct {
	// BaseURL is the account API host, e.g. https://acme.api-us1.com.
	BaseURL  string
	APIToken string
	// AllowedOrigin is "*" or a comma separated list of origins.
	AllowedOrigin string
	Prefix        string
	Timeout       time.Duration
	MaxBodySize   int64
}

// ContactForm is the url-encoded body posted by the site's signup forms.
type ContactForm struct {
	Email     string `form:"email" validate:"required,email,max=255"`
	FirstName string `form:"firstName" validate:"max=255"`
	LastName  string `form:"lastName" validate:"max=255"`
	Phone     string `form:"phone" validate:"max=64"`
}

type contactPayload struct {
	Contact contact `json:"contact"`
}

type contact struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Proxy implements the form proxy handlers.
type Proxy struct {
	cfg      Config
	client   *http.Client
	decoder  *form.Decoder
	validate *validator.Validate
	logger   *zerolog.Logger
	origins  map[string]struct{}
}

// Option customizes a Proxy.
type Option func(*Proxy)

// WithHTTPClient replaces the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) {
		p.client = c
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(p *Proxy) {
		p.logger = l
	}
}

func New(cfg Config, opts ...Option) *Proxy {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	nop := zerolog.Nop()
	p := &Proxy{
		cfg:      cfg,
		client:   &http.Client{},
		decoder:  form.NewDecoder(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   &nop,
		origins:  make(map[string]struct{}),
	}
	for _, o := range strings.Split(cfg.AllowedOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			p.origins[o] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether an upstream account is set.
func (p *Proxy) Configured() bool {
	return p.cfg.BaseURL != "" && p.cfg.APIToken != ""
}

// HandleOptions answers CORS preflight requests, and plain OPTIONS
// requests with the allowed methods.
func (p *Proxy) HandleOptions(w http.ResponseWriter, r *http.Request) error {
	h := w.Header()
	if r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != "" &&
		r.Header.Get("Access-Control-Request-Headers") != "" {
		p.setCORS(h, r)
		h.Set("Access-Control-Allow-Methods", allowedMethods)
		h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
		h.Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	h.Set("Allow", allowedMethods)
	w.WriteHeader(http.StatusOK)
	return nil
}

// HandleRequest forwards r to the API and copies the answer back.
func (p *Proxy) HandleRequest(w http.ResponseWriter, r *http.Request) error {
	p.setCORS(w.Header(), r)
	if !p.Configured() {
		p.sendError(w, r, octosite.New(octosite.ErrNotConfigured, "form proxy is not configured"))
		return nil
	}

	body, contentType, siteErr := p.upstreamBody(w, r)
	if siteErr != nil {
		p.sendError(w, r, siteErr)
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.cfg.Timeout)
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, r.Method, p.targetURL(r.URL), body)
	if err != nil {
		return octosite.Wrapf(err, octosite.ErrUnexpected, "formproxy: build upstream request for %s", r.URL.Path)
	}
	outReq.Header.Set("Api-Token", p.cfg.APIToken)
	outReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		outReq.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(outReq)
	if err != nil {
		upErr := octosite.Wrap(err, octosite.ErrUpstream, "upstream unavailable")
		octosite.LogErrorWithPath(p.logger, upErr, r.URL.Path)
		p.sendError(w, r, upErr)
		return nil
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("[formproxy] copying upstream body")
	}
	return nil
}

// upstreamBody reads the client body and converts url-encoded contact
// forms into the API's JSON document. Failures carry the status to answer
// with.
func (p *Proxy) upstreamBody(w http.ResponseWriter, r *http.Request) (io.Reader, string, *octosite.SiteError) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
		return nil, "", nil
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, p.cfg.MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", octosite.Newf(octosite.ErrBodyTooLarge, "request body too large (max %d bytes)", tooLarge.Limit)
		}
		return nil, "", octosite.Wrap(err, octosite.ErrInvalidRequest, "could not read request body")
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/x-www-form-urlencoded" {
		return bytes.NewReader(raw), contentType, nil
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, "", octosite.Wrap(err, octosite.ErrInvalidRequest, "malformed form body")
	}
	payload, siteErr := p.contactFromForm(values)
	if siteErr != nil {
		return nil, "", siteErr
	}
	encoded, err := sonic.Marshal(payload)
	if err != nil {
		return nil, "", octosite.Wrap(err, octosite.ErrUnexpected, "encode contact")
	}
	return bytes.NewReader(encoded), "application/json", nil
}

func (p *Proxy) contactFromForm(values url.Values) (*contactPayload, *octosite.SiteError) {
	var f ContactForm
	if err := p.decoder.Decode(&f, values); err != nil {
		return nil, octosite.Wrap(err, octosite.ErrInvalidRequest, "invalid form fields")
	}
	f.Email = strings.TrimSpace(f.Email)
	if err := p.validate.Struct(&f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, octosite.Newf(octosite.ErrInvalidRequest, "invalid field %s", verrs[0].Field())
		}
		return nil, octosite.Wrap(err, octosite.ErrInvalidRequest, "invalid form fields")
	}
	return &contactPayload{Contact: contact{
		Email:     f.Email,
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Phone:     strings.TrimSpace(f.Phone),
	}}, nil
}

func (p *Proxy) targetURL(u *url.URL) string {
	rest := strings.TrimPrefix(u.Path, p.cfg.Prefix)
	target := p.cfg.BaseURL + apiPath + strings.TrimLeft(rest, "/")
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

func (p *Proxy) setCORS(h http.Header, r *http.Request) {
	if _, ok := p.origins["*"]; ok {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}
	origin := r.Header.Get("Origin")
	if _, ok := p.origins[origin]; ok && origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
}

// sendError writes siteErr as a JSON error document with its status.
func (p *Proxy) sendError(w http.ResponseWriter, r *http.Request, siteErr *octosite.SiteError) {
	body, err := sonic.Marshal(errorBody{Error: siteErr.Message})
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(siteErr.StatusCode)
	if r.Method != http.MethodHead {
		w.Write(body)
	}
}
