// Package canon implements the deterministic JSON canonicalization and
// hashing used by the event ledger (canon id "edda-canon-v1").
//
// Canonical form: UTF-8 bytes of the JSON tree with object keys sorted
// byte-wise, no insignificant whitespace, and strings serialized without
// HTML escaping. Numbers pass through as json.Number so their source
// rendering is preserved. Canonicalization operates on the already-decoded
// tree; it performs no Unicode normalization.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// CanonID is the identifier for this canonicalization scheme, recorded in
// event digests.
const CanonID = "edda-canon-v1"

// SHA256Hex returns the lowercase hex SHA-256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Decode parses raw JSON into a tree suitable for canonicalization.
// Numbers are kept as json.Number so canonicalization does not reformat them.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding JSON for canonicalization: %w", err)
	}
	return v, nil
}

// MarshalNoEscape marshals v like encoding/json but without HTML escaping
// and without a trailing newline. Used wherever bytes feed the hash chain.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	// Encode appends a newline; canonical bytes must not carry one.
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

// Canonicalize renders a decoded JSON tree as canonical bytes.
// Accepted node types are the ones produced by Decode: nil, bool, string,
// json.Number, float64, map[string]any, []any.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashTree canonicalizes a decoded JSON tree and returns its SHA-256 hex.
func HashTree(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, x)
	case json.Number:
		buf.WriteString(string(x))
	case float64:
		// Only reachable when the caller skipped Decode; render like
		// encoding/json does for the common cases.
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case int:
		buf.WriteString(strconv.Itoa(x))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	b, err := MarshalNoEscape(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
