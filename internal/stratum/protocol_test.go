package stratum

import (
	"encoding/json"
	"testing"
)

func TestRPCErrorRoundTrip(t *testing.T) {
	e := NewRPCError(ErrCodeDuplicateShare, "job-1")
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `[22,"Duplicate share","job-1"]` {
		t.Fatalf("unexpected encoding: %s", b)
	}

	var out RPCError
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Code != ErrCodeDuplicateShare || out.Message != "Duplicate share" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestIdentifyMessageRequest(t *testing.T) {
	line := []byte(`{"id":1,"method":"mining.subscribe","params":[]}`)
	req, resp, err := IdentifyMessage(line)
	if err != nil {
		t.Fatalf("IdentifyMessage: %v", err)
	}
	if resp != nil {
		t.Fatal("expected nil response for a request line")
	}
	if req == nil || req.Method != MethodSubscribe {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.IsNotification() {
		t.Fatal("request with non-nil id must not be a notification")
	}
}

func TestIdentifyMessageNotification(t *testing.T) {
	n := NewNotification(MethodSetDifficulty, 2.0)
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, _, err := IdentifyMessage(b)
	if err != nil {
		t.Fatalf("IdentifyMessage: %v", err)
	}
	if !req.IsNotification() {
		t.Fatal("expected a notification")
	}
}

func TestIdentifyMessageResponse(t *testing.T) {
	line := []byte(`{"id":7,"result":true,"error":null}`)
	req, resp, err := IdentifyMessage(line)
	if err != nil {
		t.Fatalf("IdentifyMessage: %v", err)
	}
	if req != nil {
		t.Fatal("expected nil request for a response line")
	}
	if resp == nil || resp.Result != true {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIdentifyMessageMalformed(t *testing.T) {
	if _, _, err := IdentifyMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
