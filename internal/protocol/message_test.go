package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://dashboard.example.com"

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		msg         InboundMessage
		wantKind    Kind
		wantMessage string
	}{
		{
			name: "same origin success",
			msg: InboundMessage{Origin: origin, Envelope: Envelope{
				Action: ActionSuccess, Payload: json.RawMessage(`{"login":"octo"}`), CorrelationID: "c1",
			}},
			wantKind: Success,
		},
		{
			name: "same origin error with message",
			msg: InboundMessage{Origin: origin, Envelope: Envelope{
				Action: ActionError, Message: "access denied", CorrelationID: "c1",
			}},
			wantKind:    Failure,
			wantMessage: "access denied",
		},
		{
			name: "same origin error without message uses default",
			msg: InboundMessage{Origin: origin, Envelope: Envelope{
				Action: ActionError, CorrelationID: "c1",
			}},
			wantKind:    Failure,
			wantMessage: DefaultFailureMessage,
		},
		{
			name: "foreign origin success is ignored",
			msg: InboundMessage{Origin: "https://evil.example", Envelope: Envelope{
				Action: ActionSuccess, CorrelationID: "c1",
			}},
			wantKind: Ignore,
		},
		{
			name: "empty origin is ignored",
			msg: InboundMessage{Envelope: Envelope{
				Action: ActionSuccess, CorrelationID: "c1",
			}},
			wantKind: Ignore,
		},
		{
			name: "unknown action is ignored",
			msg: InboundMessage{Origin: origin, Envelope: Envelope{
				Action: "webpack-hmr", CorrelationID: "c1",
			}},
			wantKind: Ignore,
		},
		{
			name: "other attempt's correlation is ignored",
			msg: InboundMessage{Origin: origin, Envelope: Envelope{
				Action: ActionSuccess, CorrelationID: "c2",
			}},
			wantKind: Ignore,
		},
		{
			name: "missing correlation is ignored",
			msg: InboundMessage{Origin: origin, Envelope: Envelope{
				Action: ActionSuccess,
			}},
			wantKind: Ignore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.msg, origin, "c1")
			assert.Equal(t, tt.wantKind, v.Kind, v.Reason)
			if tt.wantKind == Failure {
				assert.Equal(t, tt.wantMessage, v.Message)
			}
			if tt.wantKind == Success {
				assert.JSONEq(t, string(tt.msg.Payload), string(v.Payload))
			}
		})
	}
}

func TestDecode(t *testing.T) {
	msg, ok := Decode(origin, []byte(`{"action":"github-authentication-success","payload":{"id":1},"correlationId":"c1"}`))
	require.True(t, ok)
	assert.Equal(t, origin, msg.Origin)
	assert.Equal(t, ActionSuccess, msg.Action)
	assert.Equal(t, "c1", msg.CorrelationID)

	_, ok = Decode(origin, []byte(`not json`))
	assert.False(t, ok)

	_, ok = Decode(origin, []byte(`{"payload":{}}`))
	assert.False(t, ok)

	_, ok = Decode(origin, []byte(`"a string"`))
	assert.False(t, ok)
}

func TestBuilders(t *testing.T) {
	msg, err := SuccessMessage(origin, "c1", map[string]string{"login": "octo"})
	require.NoError(t, err)
	assert.Equal(t, Success, Classify(msg, origin, "c1").Kind)

	errMsg := ErrorMessage(origin, "c1", "")
	v := Classify(errMsg, origin, "c1")
	assert.Equal(t, Failure, v.Kind)
	assert.Equal(t, DefaultFailureMessage, v.Message)
}
