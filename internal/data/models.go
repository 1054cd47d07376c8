package data

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Payload is the JSON body sent to the /store-data endpoint. Fields are kept
// loosely typed because clients send whatever their browser reports; Raw is
// the body exactly as received and is what gets forwarded for prediction.
type Payload struct {
	Fields map[string]any
	Raw    []byte
}

// ParsePayload decodes a request body. Only a JSON object is accepted.
func ParsePayload(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after JSON object")
		}
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if fields == nil {
		return Payload{}, fmt.Errorf("decode payload: body is not a JSON object")
	}
	return Payload{Fields: fields, Raw: body}, nil
}

// Record is one serialized telemetry submission as stored in the sink.
// The field order here is the column order of the sink.
type Record struct {
	MouseMovements string `msgpack:"mouse_movements"`
	ScreenWidth    string `msgpack:"screen_width"`
	ScreenHeight   string `msgpack:"screen_height"`
	BrowserName    string `msgpack:"browser_name"`
	UserAgent      string `msgpack:"user_agent"`
	Language       string `msgpack:"language"`
	TimeOnPage     string `msgpack:"time_on_page"`
	Clicks         string `msgpack:"clicks"`
	KeyPresses     string `msgpack:"key_presses"`
	Referrer       string `msgpack:"referrer"`
}

// NewRecord derives a record from a payload. Absent or unusable values fall
// back to "0" for numeric columns and "" for text columns.
func NewRecord(p Payload) Record {
	return Record{
		MouseMovements: strconv.Itoa(sequenceLen(p.Fields["mouseMovements"])),
		ScreenWidth:    number(p.Fields["screenWidth"]),
		ScreenHeight:   number(p.Fields["screenHeight"]),
		BrowserName:    text(p.Fields["browserName"]),
		UserAgent:      text(p.Fields["userAgent"]),
		Language:       text(p.Fields["language"]),
		TimeOnPage:     number(p.Fields["timeOnPage"]),
		Clicks:         number(p.Fields["clicks"]),
		KeyPresses:     number(p.Fields["keyPresses"]),
		Referrer:       text(p.Fields["referrer"]),
	}
}

// Fields returns the column values in sink order.
func (r Record) Fields() []string {
	return []string{
		r.MouseMovements,
		r.ScreenWidth,
		r.ScreenHeight,
		r.BrowserName,
		r.UserAgent,
		r.Language,
		r.TimeOnPage,
		r.Clicks,
		r.KeyPresses,
		r.Referrer,
	}
}

// CSVLine renders the record as a single newline-terminated line. Values
// holding separators are quoted so a line always splits into ten columns.
func (r Record) CSVLine() string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	// csv.Writer only fails on the underlying writer, and a strings.Builder
	// never does.
	_ = w.Write(r.Fields())
	w.Flush()
	return sb.String()
}

// sequenceLen is the length of an array, or the UTF-16 length of a string.
func sequenceLen(v any) int {
	switch s := v.(type) {
	case []any:
		return len(s)
	case string:
		return len(utf16.Encode([]rune(s)))
	}
	return 0
}

func number(v any) string {
	switch n := v.(type) {
	case json.Number:
		if s, ok := formatNumber(n); ok {
			return s
		}
	case string:
		if n != "" {
			return n
		}
	case bool:
		if n {
			return "true"
		}
	}
	return "0"
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		if out, ok := formatNumber(s); ok {
			return out
		}
	case bool:
		if s {
			return "true"
		}
	}
	return ""
}

// formatNumber renders n the way browsers print numbers: shortest decimal
// from 1e-6 up to 1e21, exponent notation outside it, and Infinity for
// literals beyond float64 range. ok is false for zero.
func formatNumber(n json.Number) (string, bool) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil && !math.IsInf(f, 0) {
		return "", false
	}
	switch {
	case f == 0:
		return "", false
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	}

	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits, true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
