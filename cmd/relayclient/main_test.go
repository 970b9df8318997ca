package main

import (
	"strings"
	"testing"

	"github.com/rickgao/nano-relay/internal/model"
)

func TestBuildRequests(t *testing.T) {
	reqs := buildRequests([]string{"nano_1a", "nano_3b"}, true, []string{"ABCD"})

	want := []model.ClientRequest{
		{Action: model.ActionRegisterAccount, Account: "nano_1a"},
		{Action: model.ActionRegisterAccount, Account: "nano_3b"},
		{Action: model.ActionListenAll},
		{Action: model.ActionWorkGenerate, Hash: "ABCD"},
	}
	if len(reqs) != len(want) {
		t.Fatalf("len = %d, want %d", len(reqs), len(want))
	}
	for i := range want {
		if reqs[i] != want[i] {
			t.Errorf("reqs[%d] = %+v, want %+v", i, reqs[i], want[i])
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "confirmation",
			data: `{"topic":"confirmation","is_filtered":true,"message":{"account":"nano_1a","hash":"H1","amount":"100"}}`,
			want: "[CONFIRMATION] account=nano_1a hash=H1 amount=100 filtered=true",
		},
		{
			name: "work",
			data: `{"work":"fedcba","hash":"ABCD"}`,
			want: "[WORK] hash=ABCD work=fedcba",
		},
		{
			name: "work error",
			data: `{"hash":"ABCD","error":"work generation failed"}`,
			want: "[WORK ERROR] hash=ABCD error=work generation failed",
		},
		{
			name: "invalid",
			data: `not json`,
			want: "[UNKNOWN] not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe([]byte(tt.data), false); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribe_Verbose(t *testing.T) {
	got := describe([]byte(`{"topic":"confirmation","message":{"account":"nano_1a"}}`), true)
	if !strings.HasPrefix(got, "[CONFIRMATION] {\n") {
		t.Errorf("describe() = %q, want indented confirmation", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitCSV() = %v, want [a b]", got)
	}
	if got := splitCSV(""); len(got) != 0 {
		t.Errorf("splitCSV(\"\") = %v, want empty", got)
	}
}
