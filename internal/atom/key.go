package atom

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Key constrains the key types an OrderedMap accepts: strings and integers,
// whose canonical JSON form is unambiguous. Floats are excluded because
// their text form is not canonical.
type Key interface {
	~string | ~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// EncodeKey returns the index string of k: the hex encoding of its JSON
// form, with HTML characters left unescaped. DecodeKey must return k
// exactly, so string keys that are not NFC normalized, or that hold invalid
// UTF-8, are rejected rather than rewritten; otherwise two distinct keys
// could share one stored row.
func EncodeKey[K Key](k K) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(k); err != nil {
		return "", NewSerializationError("encode key", err)
	}
	// json.Encoder adds trailing newline, remove it
	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	if !norm.NFC.IsNormal(data) {
		return "", NewSerializationError("encode key", fmt.Errorf("key %s is not NFC normalized", data))
	}
	var back K
	if err := json.Unmarshal(data, &back); err != nil || back != k {
		return "", NewSerializationError("encode key", fmt.Errorf("key %s does not decode to itself", data))
	}
	return hex.EncodeToString(data), nil
}

// DecodeKey is the inverse of EncodeKey.
func DecodeKey[K Key](index string) (K, error) {
	var k K
	data, err := hex.DecodeString(index)
	if err != nil {
		return k, NewSerializationError("decode key", fmt.Errorf("index %q: %w", index, err))
	}
	if err := json.Unmarshal(data, &k); err != nil {
		return k, NewSerializationError("decode key", fmt.Errorf("index %q: %w", index, err))
	}
	return k, nil
}
