package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// Projection selects which parts of a message Normalize extracts.
type Projection int

const (
	ProjectHeaders Projection = 1 << iota
	ProjectBody

	ProjectCombined = ProjectHeaders | ProjectBody
)

// Headers reports whether p includes the header keys.
func (p Projection) Headers() bool { return p&ProjectHeaders != 0 }

// Body reports whether p includes the body key.
func (p Projection) Body() bool { return p&ProjectBody != 0 }

func (p Projection) String() string {
	switch p {
	case ProjectHeaders:
		return "headers"
	case ProjectBody:
		return "body"
	case ProjectCombined:
		return "combined"
	}
	return "Projection(" + strconv.Itoa(int(p)) + ")"
}

// HeaderNames are the header fields copied into a record, in output order.
var HeaderNames = []string{
	"From",
	"Content-Type",
	"MIME-Version",
	"User-Agent",
	"Subject",
	"Encoding",
	"To",
	"Cc",
	"Content-Language",
}

// BodyKey and IDKey are the non-header record keys.
const (
	IDKey   = "id"
	BodyKey = "body"
)

// Record is a normalized message. Headers holds one entry per HeaderNames
// element when the projection includes headers; a nil value means the
// header was absent. Body is only meaningful when the projection includes
// the body.
type Record struct {
	ID         int
	Projection Projection
	Headers    map[string]*string
	Body       []byte
}

// Header returns the value of a copied header and whether it was present.
func (r *Record) Header(name string) (string, bool) {
	v, ok := r.Headers[name]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Keys lists the record keys implied by its projection, in output order.
func (r *Record) Keys() []string {
	keys := []string{IDKey}
	if r.Projection.Headers() {
		keys = append(keys, HeaderNames...)
	}
	if r.Projection.Body() {
		keys = append(keys, BodyKey)
	}
	return keys
}

// MarshalJSON writes the record as an object with exactly Keys(), absent
// headers as null and the body as a string. Text parts arrive as UTF-8
// after charset decoding; bytes that are still not valid UTF-8 become
// U+FFFD.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"` + IDKey + `":`)
	buf.WriteString(strconv.Itoa(r.ID))

	field := func(key string, v any) error {
		buf.WriteByte(',')
		if err := writeJSON(&buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		return writeJSON(&buf, v)
	}

	if r.Projection.Headers() {
		for _, name := range HeaderNames {
			if err := field(name, r.Headers[name]); err != nil {
				return nil, err
			}
		}
	}
	if r.Projection.Body() {
		if err := field(BodyKey, strings.ToValidUTF8(string(r.Body), "\uFFFD")); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeJSON encodes v without HTML escaping.
func writeJSON(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// Normalize parses raw and reduces it to a Record carrying id.
//
// For multipart messages the body is the decoded payload of the last leaf
// part, in document order, whose Content-Type header is non-empty. Earlier
// matches are overwritten, so a trailing attachment wins over a leading
// text part.
func Normalize(raw RawMessage, id int, projection Projection) (*Record, error) {
	op := fmt.Sprintf("normalize message %d", id)

	entity, err := gomessage.Read(bytes.NewReader(raw.Bytes()))
	if err != nil && !tolerable(err) {
		return nil, newError(KindDecode, op, err)
	}

	rec := &Record{ID: id, Projection: projection}

	if projection.Headers() {
		rec.Headers = make(map[string]*string, len(HeaderNames))
		for _, name := range HeaderNames {
			if !entity.Header.Has(name) {
				rec.Headers[name] = nil
				continue
			}
			v := entity.Header.Get(name)
			rec.Headers[name] = &v
		}
	}

	if projection.Body() {
		body, err := extractBody(entity)
		if err != nil {
			return nil, newError(KindDecode, op, err)
		}
		rec.Body = body
	}

	return rec, nil
}

// tolerable reports parse errors that leave the entity usable with its
// body undecoded: charsets we have no reader for and unknown transfer
// encodings.
func tolerable(err error) bool {
	return gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err)
}

func extractBody(entity *gomessage.Entity) ([]byte, error) {
	if !isMultipart(entity) {
		return io.ReadAll(entity.Body)
	}

	body := []byte{}
	err := entity.Walk(func(_ []int, part *gomessage.Entity, err error) error {
		if err != nil && !tolerable(err) {
			return err
		}
		if part == nil || isMultipart(part) {
			return nil
		}
		if strings.TrimSpace(part.Header.Get("Content-Type")) == "" {
			return nil
		}
		b, err := io.ReadAll(part.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func isMultipart(e *gomessage.Entity) bool {
	mediaType, _, _ := e.Header.ContentType()
	return strings.HasPrefix(strings.ToLower(mediaType), "multipart/")
}
