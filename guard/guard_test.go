package guard

import (
	"bytes"
	"errors"
	"testing"
)

func TestCheckMessageSize(t *testing.T) {
	if err := CheckMessageSize([]byte(`{"jsonrpc":"2.0"}`)); err != nil {
		t.Fatalf("small message rejected: %v", err)
	}
	if err := CheckMessageSize(bytes.Repeat([]byte("a"), MaxMessageBytes)); err != nil {
		t.Fatalf("message at the limit rejected: %v", err)
	}
	err := CheckMessageSize(bytes.Repeat([]byte("a"), MaxMessageBytes+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("oversize message = %v, want ErrPayloadTooLarge", err)
	}
}
