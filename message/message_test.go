package message

import (
	"testing"

	"pixlise-client/buffer"
)

func TestArgConstructors(t *testing.T) {
	cases := []struct {
		arg  Arg
		kind ArgKind
		want any
	}{
		{String("048300551"), ArgString, "048300551"},
		{String(""), ArgString, ""},
		{Int32(-1), ArgInt32, int32(-1)},
		{Bool(true), ArgBool, true},
	}
	for _, tc := range cases {
		if tc.arg.Kind != tc.kind {
			t.Errorf("expect kind %v, got %v", tc.kind, tc.arg.Kind)
		}
		if tc.arg.Value() != tc.want {
			t.Errorf("expect value %v, got %v", tc.want, tc.arg.Value())
		}
	}
}

func TestCallRequest(t *testing.T) {
	call := &Call{
		Seq:       7,
		Operation: OpGetQuant,
		Args:      []Arg{String("quant-1"), Bool(true)},
		Alloc: func(tag buffer.TypeTag, count int) (*buffer.Handle, error) {
			return nil, nil
		},
	}
	req := call.Request()
	if req.Operation != OpGetQuant || len(req.Args) != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestReadOnly(t *testing.T) {
	for _, op := range []string{OpCreateROI, OpDeleteROI, OpAuthenticate, OpSaveMapData} {
		if ReadOnly(op) {
			t.Errorf("%s must not be treated as read-only", op)
		}
	}
	for _, op := range []string{OpListScans, OpGetQuantColumn, OpGetROI, OpLoadMapData} {
		if !ReadOnly(op) {
			t.Errorf("%s should be read-only", op)
		}
	}
}
