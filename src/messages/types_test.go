package messages

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEnvelopeJSON(t *testing.T) {
	env := Wrap(7, ScanItem{TaskID: "t1", Index: 1, Label: "[extra 1]", Text: "你好"})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded struct {
		Seq  uint64          `json:"seq"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Seq != 7 || decoded.Type != TypeScanItem {
		t.Errorf("unexpected envelope header: %+v", decoded)
	}
	if !strings.Contains(string(decoded.Data), `"label":"[extra 1]"`) {
		t.Errorf("expected label in data, got %s", decoded.Data)
	}
}
