package protocol

import (
	"encoding/json"
	"testing"
)

func TestResolvedKind(t *testing.T) {
	cases := []struct {
		name string
		env  SignalEnvelope
		want Kind
	}{
		{"explicit kind wins", SignalEnvelope{Kind: KindAnswer, From: "offer"}, KindAnswer},
		{"legacy offer", SignalEnvelope{From: "offer"}, KindOffer},
		{"legacy answer", SignalEnvelope{From: "answer"}, KindAnswer},
		{"legacy ice", SignalEnvelope{From: "ice"}, KindICECandidate},
		{"participant id in from", SignalEnvelope{From: "userA"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.env.ResolvedKind(); got != tc.want {
				t.Fatalf("ResolvedKind()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestSignalEnvelopeKeepsDataOpaque(t *testing.T) {
	raw := []byte(`{"callId":"call-1","from":"offer","to":"userB","data":{"type":"offer","sdp":"v=0","x":[1,2]}}`)

	var env SignalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(env.Data) != `{"type":"offer","sdp":"v=0","x":[1,2]}` {
		t.Fatalf("data=%s", env.Data)
	}
	if env.CallID != "call-1" || env.To != "userB" {
		t.Fatalf("routing fields lost: %+v", env)
	}
}
