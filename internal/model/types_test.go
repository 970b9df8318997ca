package model

import (
	"encoding/json"
	"testing"
)

func TestUpstreamCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  UpstreamCommand
		want string
	}{
		{
			name: "subscribe empty set",
			cmd:  SubscribeAccounts(nil),
			want: `{"action":"subscribe","topic":"confirmation","options":{"accounts":[]}}`,
		},
		{
			name: "subscribe accounts",
			cmd:  SubscribeAccounts([]string{"nano_1a", "nano_3b"}),
			want: `{"action":"subscribe","topic":"confirmation","options":{"accounts":["nano_1a","nano_3b"]}}`,
		},
		{
			name: "subscribe all",
			cmd:  SubscribeAll(),
			want: `{"action":"subscribe","topic":"confirmation"}`,
		},
		{
			name: "update add only",
			cmd:  UpdateAccounts([]string{"nano_1a"}, nil),
			want: `{"action":"update","topic":"confirmation","options":{"accounts_add":["nano_1a"]}}`,
		},
		{
			name: "update add and del",
			cmd:  UpdateAccounts([]string{"nano_1a"}, []string{"nano_3b"}),
			want: `{"action":"update","topic":"confirmation","options":{"accounts_add":["nano_1a"],"accounts_del":["nano_3b"]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.cmd)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProviderRequest(t *testing.T) {
	got, err := json.Marshal(ProviderRequest{User: "u", APIKey: "k", Hash: "ABCD", ID: 7})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"user":"u","api_key":"k","hash":"ABCD","id":7}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestWorkReply(t *testing.T) {
	tests := []struct {
		name  string
		reply WorkReply
		want  string
	}{
		{"work", WorkReply{Work: "fedcba", Hash: "ABCD"}, `{"work":"fedcba","hash":"ABCD"}`},
		{"error", WorkReply{Hash: "ABCD", Error: "work generation failed"}, `{"hash":"ABCD","error":"work generation failed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := json.Marshal(tt.reply)
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClientRequest(t *testing.T) {
	var req ClientRequest
	if err := json.Unmarshal([]byte(`{"action":"register_account","account":"nano_1a"}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.Action != ActionRegisterAccount {
		t.Errorf("Action = %q, want %q", req.Action, ActionRegisterAccount)
	}
	if req.Account != "nano_1a" {
		t.Errorf("Account = %q, want nano_1a", req.Account)
	}
}

func TestNewClientID(t *testing.T) {
	a, b := NewClientID(), NewClientID()
	if a == b {
		t.Error("NewClientID() returned duplicate ids")
	}
}
