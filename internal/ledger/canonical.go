package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Canonical form rules, shared with the external robot producer:
//
//   - keys sorted lexicographically at every level
//   - price-like fields: 8 decimal places
//   - monetary/lot fields: 2 decimal places
//   - count/sequence/timestamp fields: bare integers
//   - rounding is half away from zero, never banker's
//   - absent optional fields are omitted, never serialized as null
//   - strings are UTF-8 with standard JSON escaping
//   - no insignificant whitespace
//
// Any change here is a wire-format break for every producer that
// independently recomputes event hashes.

type fieldKind int

const (
	kindText fieldKind = iota
	kindInt
	kindMoney
	kindPrice
	kindRaw
)

type field struct {
	key  string
	kind fieldKind
	num  float64
	i    int64
	str  string
	omit bool
}

func text(key, v string) field          { return field{key: key, kind: kindText, str: v} }
func integer(key string, v int64) field { return field{key: key, kind: kindInt, i: v} }
func money(key string, v float64) field { return field{key: key, kind: kindMoney, num: v} }
func price(key string, v float64) field { return field{key: key, kind: kindPrice, num: v} }
func rawObject(key, v string) field     { return field{key: key, kind: kindRaw, str: v} }

// optText omits the field entirely when the value is empty.
func optText(key, v string) field {
	return field{key: key, kind: kindText, str: v, omit: v == ""}
}

// Canonicalize produces the deterministic byte string an event is hashed
// over. It is a pure function of the event's logical content: the stored
// Hash and CreatedAt fields do not participate.
func Canonicalize(e *Event) []byte {
	env := []field{
		text("chain_id", e.ChainID),
		text("event_type", string(e.Type)),
		rawObject("payload", canonicalObject(e.Payload.fields())),
		text("prev_hash", e.PrevHash),
		integer("sequence", e.Sequence),
		integer("timestamp", e.Timestamp),
	}
	return []byte(canonicalObject(env))
}

func canonicalObject(fields []field) string {
	kept := make([]field, 0, len(fields))
	for _, f := range fields {
		if !f.omit {
			kept = append(kept, f)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].key < kept[j].key })

	var b strings.Builder
	b.WriteByte('{')
	for i, f := range kept {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, f.key)
		b.WriteByte(':')
		switch f.kind {
		case kindText:
			writeJSONString(&b, f.str)
		case kindInt:
			b.WriteString(strconv.FormatInt(f.i, 10))
		case kindMoney:
			b.WriteString(fixed(f.num, 2))
		case kindPrice:
			b.WriteString(fixed(f.num, 8))
		case kindRaw:
			b.WriteString(f.str)
		}
	}
	b.WriteByte('}')
	return b.String()
}

// fixed renders v with exactly the given number of decimal places, rounding
// half away from zero. decimal.StringFixed implements that rounding mode;
// strconv.FormatFloat would round half to even and drift from the producer.
func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
