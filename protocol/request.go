package protocol

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoParameters is returned when a request carries no protocol parameters.
var ErrNoParameters = errors.New("no oauth parameters found in request")

// maxBodyBytes bounds the urlencoded body read by Parse.
const maxBodyBytes = 1 << 20

// Request is a parsed protocol message.
type Request struct {
	Method   string
	URL      *url.URL
	ClientIP string
	// Callback is the JSONP callback requested through the query string.
	Callback string

	// Signature is the oauth_signature value, if any. It never appears in
	// Params.
	Signature string

	Params  map[string]string
	Headers CredentialHeaders
}

// NewRequest builds a Request from already extracted parameters. Keys are
// unprefixed; non-reserved keys are dropped and the signature is split off.
func NewRequest(method string, u *url.URL, params map[string]string) *Request {
	r := &Request{
		Method:  strings.ToUpper(method),
		URL:     u,
		Params:  make(map[string]string),
		Headers: make(CredentialHeaders),
	}
	r.merge(params)

	return r
}

// Parse extracts protocol parameters from an HTTP request. Parameters from an
// OAuth scheme Authorization header take precedence; the query string (GET,
// OPTIONS) or urlencoded body (POST) only fill in keys the header did not set.
func Parse(req *http.Request) (*Request, error) {
	r := NewRequest(req.Method, canonicalURL(req), nil)
	r.ClientIP = clientIP(req)
	r.Callback = req.URL.Query().Get("callback")
	r.Headers = ResolveCredentialHeaders(req.Header)

	if header := parseAuthorizationHeader(req.Header.Get("Authorization")); header != nil {
		r.merge(header)
	}

	vars, err := methodVars(req)
	if err != nil {
		return nil, err
	}
	r.merge(vars)

	if len(r.Params) == 0 && r.Signature == "" {
		return r, ErrNoParameters
	}

	return r, nil
}

// merge adds params without overwriting keys that are already set.
func (r *Request) merge(params map[string]string) {
	for k, v := range params {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if k == Signature {
			if r.Signature == "" {
				r.Signature = v
			}
			continue
		}

		if !IsReserved(k) {
			continue
		}

		if _, exists := r.Params[k]; !exists {
			r.Params[k] = v
		}
	}
}

func methodVars(req *http.Request) (map[string]string, error) {
	var values url.Values

	switch req.Method {
	case http.MethodGet, http.MethodOptions:
		values = req.URL.Query()
	case http.MethodPost:
		ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if ct != "application/x-www-form-urlencoded" || req.Body == nil {
			return nil, nil
		}

		req.Body = http.MaxBytesReader(nil, req.Body, maxBodyBytes)
		if err := req.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form body: %w", err)
		}
		values = req.PostForm
	default:
		return nil, nil
	}

	out := make(map[string]string)
	for k, vs := range values {
		name, ok := strings.CutPrefix(k, ParamPrefix)
		if !ok || len(vs) == 0 {
			continue
		}
		out[name] = vs[0]
	}

	return out, nil
}

func canonicalURL(req *http.Request) *url.URL {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
	}
}

func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}

	return host
}

// Get returns the named parameter or "".
func (r *Request) Get(name string) string { return r.Params[name] }

// Has reports whether the named parameter is present.
func (r *Request) Has(name string) bool {
	_, ok := r.Params[name]
	return ok
}

// Set overrides a parameter. Non-reserved names are ignored.
func (r *Request) Set(name, value string) {
	if IsReserved(name) {
		r.Params[name] = value
	}
}

func (r *Request) ClientID() string        { return r.Params[ClientID] }
func (r *Request) ClientSecret() string    { return r.Params[ClientSecret] }
func (r *Request) SignatureMethod() string { return r.Params[SignatureMethod] }
func (r *Request) ResponseType() string    { return r.Params[ResponseType] }
func (r *Request) Code() string            { return r.Params[Code] }
func (r *Request) AccessToken() string     { return r.Params[AccessToken] }
func (r *Request) RefreshToken() string    { return r.Params[RefreshToken] }
func (r *Request) State() string           { return r.Params[State] }

// BaseString returns the signing input for the request.
func (r *Request) BaseString() string {
	return BaseString(r.Method, r.URL, r.Params)
}
