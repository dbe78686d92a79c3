package protocol

import (
	"net/url"
	"sort"
	"strings"
)

// Encode percent-encodes s per RFC 3986, leaving only unreserved characters.
func Encode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}

		b.WriteByte('%')
		b.WriteByte("0123456789ABCDEF"[c>>4])
		b.WriteByte("0123456789ABCDEF"[c&15])
	}

	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// BaseString builds the signing input for a request:
// METHOD&enc(scheme://host/path)&enc(sorted k=v pairs).
//
// params are unprefixed reserved parameters and are signed under their
// oauth_ wire names. Non-protocol query parameters of u are included too.
func BaseString(method string, u *url.URL, params map[string]string) string {
	all := make(map[string][]string)

	for k, v := range params {
		if k == Signature {
			continue
		}
		all[ParamPrefix+k] = append(all[ParamPrefix+k], v)
	}

	for k, vs := range u.Query() {
		if strings.HasPrefix(k, ParamPrefix) {
			continue
		}
		all[k] = append(all[k], vs...)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		vs := all[k]
		sort.Strings(vs)
		for _, v := range vs {
			pairs = append(pairs, Encode(k)+"="+Encode(v))
		}
	}

	return strings.ToUpper(method) + "&" + Encode(baseURL(u)) + "&" + Encode(strings.Join(pairs, "&"))
}

func baseURL(u *url.URL) string {
	host := strings.ToLower(u.Host)
	scheme := strings.ToLower(u.Scheme)

	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	return scheme + "://" + host + path
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
