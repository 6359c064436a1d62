package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func parseAddress(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(s) != 40 {
		return nil, fmt.Errorf("invalid address: %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	return b, nil
}

// a single ABI argument word, or an error to surface from encodeCall
type word struct {
	b   []byte
	err error
}

// left-padded address word
func address(s string) word {
	a, err := parseAddress(s)
	if err != nil {
		return word{err: err}
	}
	w := make([]byte, 32)
	copy(w[12:], a)
	return word{b: w}
}

func uint256(v *big.Int) word {
	if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
		return word{err: fmt.Errorf("value out of uint256 range: %v", v)}
	}
	return word{b: v.FillBytes(make([]byte, 32))}
}

// encodes static arguments after the selector; raw byte slices must already be a 32-byte word
func encodeCall(selector []byte, args ...any) ([]byte, error) {
	out := append([]byte{}, selector...)
	for _, a := range args {
		switch v := a.(type) {
		case word:
			if v.err != nil {
				return nil, v.err
			}
			out = append(out, v.b...)
		case []byte:
			if len(v) != 32 {
				return nil, fmt.Errorf("ABI word must be 32 bytes, got %d", len(v))
			}
			out = append(out, v...)
		default:
			return nil, fmt.Errorf("unsupported ABI argument: %T", a)
		}
	}
	return out, nil
}

// decodes the first return word as an unsigned integer
func decodeUint(out []byte) (*big.Int, error) {
	if len(out) < 32 {
		return nil, fmt.Errorf("short return data: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}
