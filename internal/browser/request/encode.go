// internal/browser/request/encode.go
package request

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// charsetEncoder converts parameter text into the submission character set.
// Characters the charset cannot represent become numeric character references,
// as browsers do.
type charsetEncoder struct {
	enc *encoding.Encoder
}

func newCharsetEncoder(charset string) charsetEncoder {
	if charset == "" {
		return charsetEncoder{}
	}
	e, err := htmlindex.Get(charset)
	if err != nil {
		return charsetEncoder{}
	}
	if name, _ := htmlindex.Name(e); name == "utf-8" {
		return charsetEncoder{}
	}
	return charsetEncoder{enc: encoding.HTMLEscapeUnsupported(e.NewEncoder())}
}

func (c charsetEncoder) String(s string) string {
	if c.enc == nil {
		return s
	}
	out, err := c.enc.String(s)
	if err != nil {
		return s
	}
	return out
}

// encodeQuery serializes params in order; url.Values would sort them. File
// parameters are skipped in query strings and carry only the file name in
// urlencoded bodies.
func encodeQuery(params []Param, enc charsetEncoder, includeFiles bool) string {
	var b strings.Builder
	for _, p := range params {
		value := p.Value
		if p.IsFile {
			if !includeFiles {
				continue
			}
			value = ""
			if p.File != nil {
				value = p.File.Name
			}
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(enc.String(p.Name)))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(enc.String(value)))
	}
	return b.String()
}

// ParseQuery splits a raw query string into ordered parameters.
func ParseQuery(raw string) []Param {
	var params []Param
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params = append(params, Param{Name: name, Value: value})
	}
	return params
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(params []Param, enc charsetEncoder) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range params {
		name := enc.String(p.Name)
		if !p.IsFile {
			// WriteField escapes the name itself.
			if err := w.WriteField(name, enc.String(p.Value)); err != nil {
				return nil, "", err
			}
			continue
		}

		f := p.File
		if f == nil {
			f = &File{}
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(name), quoteEscaper.Replace(enc.String(f.Name))))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
