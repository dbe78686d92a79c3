package protocol

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// AuthScheme is the Authorization scheme carrying protocol parameters.
const AuthScheme = "OAuth"

// parseAuthorizationHeader reads `OAuth oauth_key="value", ...` into a map
// keyed by the unprefixed parameter name. Values are percent-decoded. It
// returns nil when the header does not use the OAuth scheme.
func parseAuthorizationHeader(value string) map[string]string {
	value = strings.TrimSpace(value)
	if len(value) <= len(AuthScheme) || !strings.EqualFold(value[:len(AuthScheme)], AuthScheme) {
		return nil
	}

	rest := value[len(AuthScheme):]
	if rest[0] != ' ' && rest[0] != '\t' {
		return nil
	}

	params := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"`)

		name, ok := strings.CutPrefix(k, ParamPrefix)
		if !ok {
			continue
		}

		// RFC 3986 encoding: a literal '+' is not a space.
		decoded, err := url.PathUnescape(v)
		if err != nil {
			continue
		}

		params[name] = decoded
	}

	if len(params) == 0 {
		return nil
	}

	return params
}

// AuthorizationHeader renders params as an OAuth scheme Authorization header
// value. Keys are unprefixed parameter names.
func AuthorizationHeader(params map[string]string) string {
	var b strings.Builder
	b.WriteString(AuthScheme)

	for i, k := range sortedKeys(params) {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(ParamPrefix + k + `="` + Encode(params[k]) + `"`)
	}

	return b.String()
}

// Credential header variants. A client may present Basic credentials through
// any of them depending on the proxies in front of the server.
const (
	VariantAuthorization      = "AUTH_"
	VariantProxyAuthorization = "PROXY_AUTH_"
	VariantForwarded          = "FORWARDED_AUTH_"
)

var credentialVariants = []struct {
	prefix string
	header string
}{
	{VariantAuthorization, "Authorization"},
	{VariantProxyAuthorization, "Proxy-Authorization"},
	{VariantForwarded, "X-Forwarded-Authorization"},
}

// CredentialVariants lists the prefixes in lookup order.
func CredentialVariants() []string {
	out := make([]string, 0, len(credentialVariants))
	for _, v := range credentialVariants {
		out = append(out, v.prefix)
	}
	return out
}

// CredentialHeaders holds Basic credentials resolved from the request,
// keyed `<VARIANT>USER` and `<VARIANT>PW`. Values are still base64 encoded
// as sent by the client.
type CredentialHeaders map[string]string

// ResolveCredentialHeaders extracts Basic credentials from every supported
// header variant.
func ResolveCredentialHeaders(h http.Header) CredentialHeaders {
	out := make(CredentialHeaders)

	for _, v := range credentialVariants {
		user, pw, ok := parseBasic(h.Get(v.header))
		if !ok {
			continue
		}

		out[v.prefix+"USER"] = user
		out[v.prefix+"PW"] = pw
	}

	return out
}

func parseBasic(value string) (string, string, bool) {
	const prefix = "Basic "
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", "", false
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value[len(prefix):]))
	if err != nil {
		return "", "", false
	}

	return strings.Cut(string(raw), ":")
}
