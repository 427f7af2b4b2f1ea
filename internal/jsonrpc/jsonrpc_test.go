package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestErrorResponseCarriesNullID(t *testing.T) {
	resp := NewErrorResponse(nil, ErrorCodeInternalError, "boom")
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"id":null`) {
		t.Fatalf("response %s is missing an explicit null id", raw)
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.ID.IsNil() {
		t.Fatalf("decoded id = %v, want nil", decoded.ID)
	}
}

func TestResponseEchoesRequestID(t *testing.T) {
	cases := []struct {
		name string
		id   any
		want string
	}{
		{"string id", "abc", `"id":"abc"`},
		{"integer id", 7, `"id":7`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := NewResultResponse(NewRequestID(tc.id), map[string]string{})
			if err != nil {
				t.Fatalf("NewResultResponse failed: %v", err)
			}
			raw, err := json.Marshal(resp)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if !strings.Contains(string(raw), tc.want) {
				t.Fatalf("response %s does not echo %s", raw, tc.want)
			}
		})
	}
}

func TestDecodeRequestNullID(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"ping","id":null}`))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if !req.IsNotification() {
		t.Fatal("null id should read as a notification")
	}
}
