package edge

import (
	"bytes"

	"github.com/valyala/fasthttp"
)

// RewriteSetCookies makes every Set-Cookie in h valid at the edge origin: Domain is
// dropped and Path becomes "/". The name=value pair and every other attribute are
// relayed byte for byte, including ones fasthttp.Cookie does not model.
func RewriteSetCookies(h *fasthttp.ResponseHeader) {
	var lines [][]byte
	h.VisitAllCookie(func(_, value []byte) {
		lines = append(lines, rewriteSetCookie(value))
	})
	if len(lines) == 0 {
		return
	}

	h.DelAllCookies()
	for _, line := range lines {
		h.AddBytesKV([]byte(fasthttp.HeaderSetCookie), line)
	}
}

var rootPath = []byte(" Path=/")

func rewriteSetCookie(line []byte) []byte {
	parts := bytes.Split(line, []byte{';'})
	out := make([][]byte, 0, len(parts)+1)
	out = append(out, parts[0])

	pathSet := false
	for _, attr := range parts[1:] {
		switch attributeName(attr) {
		case "domain":
			continue
		case "path":
			if pathSet {
				continue
			}
			pathSet = true
			out = append(out, rootPath)
		default:
			out = append(out, attr)
		}
	}
	if !pathSet {
		out = append(out, rootPath)
	}
	return bytes.Join(out, []byte{';'})
}

func attributeName(attr []byte) string {
	name := attr
	if i := bytes.IndexByte(name, '='); i >= 0 {
		name = name[:i]
	}
	return string(bytes.ToLower(bytes.TrimSpace(name)))
}
