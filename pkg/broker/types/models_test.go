package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Payload
		wantErr bool
	}{
		{
			name: "chat message",
			body: `{"sender":"Jane Smith","content":"hello","type":"CHAT"}`,
			want: Payload{Sender: "Jane Smith", Content: "hello", Type: TypeChat},
		},
		{
			name: "join without content",
			body: `{"sender":"User_42","type":"JOIN"}`,
			want: Payload{Sender: "User_42", Type: TypeJoin},
		},
		{
			name: "leave with null content",
			body: `{"sender":"User_42","content":null,"type":"LEAVE"}`,
			want: Payload{Sender: "User_42", Type: TypeLeave},
		},
		{
			name: "extra fields ignored",
			body: `{"sender":"A","content":"x","type":"CHAT","timestamp":123}`,
			want: Payload{Sender: "A", Content: "x", Type: TypeChat},
		},
		{name: "not json", body: `hello`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
		{name: "array", body: `[1,2]`, wantErr: true},
		{name: "missing type", body: `{"sender":"A","content":"x"}`, wantErr: true},
		{name: "unknown type", body: `{"sender":"A","type":"TYPING"}`, wantErr: true},
		{name: "lowercase type", body: `{"sender":"A","type":"chat"}`, wantErr: true},
		{name: "missing sender", body: `{"content":"x","type":"CHAT"}`, wantErr: true},
		{name: "blank sender", body: `{"sender":"  ","type":"CHAT"}`, wantErr: true},
		{name: "wrong sender type", body: `{"sender":5,"type":"CHAT"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPayload))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode(t *testing.T) {
	body, err := Encode(Payload{Sender: "User_7", Content: "hi <3", Type: TypeChat})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"User_7","content":"hi <3","type":"CHAT"}`, body)

	body, err = Encode(Payload{Sender: "User_7", Type: TypeJoin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":"User_7","type":"JOIN"}`, body)

	_, err = Encode(Payload{Sender: "User_7", Type: "BOGUS"})
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestEncodeDecodeAgree(t *testing.T) {
	in := Payload{Sender: "Alice Johnson", Content: "ünïcödé ❤️", Type: TypeChat}
	body, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
