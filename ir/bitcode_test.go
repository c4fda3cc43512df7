package ir

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	irerrors "github.com/wippyai/irkit/errors"
)

func buildRich(t *testing.T, ctx *Context) *Module {
	t.Helper()
	m, _ := buildAdd(t, ctx, "rich")
	m.SetTargetTriple("wasm32-unknown-unknown")
	m.SetDataLayout("e-m:e-p:32:32-i64:64-n32:64-S128")
	buildFib(t, ctx, m)

	node, _ := m.AddStructType("Node")
	if err := node.SetBody([]*Type{ctx.Int64Type(), ctx.PointerType(node)}, false); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	head, _ := m.AddGlobal(ctx.PointerType(node), "head")
	head.SetInitializer(ctx.ConstNull(ctx.PointerType(node)))

	counter, _ := m.AddGlobal(ctx.Int32Type(), "counter")
	counter.SetInitializer(Compile(ctx, int32(0)))
	ext, _ := m.AddGlobal(ctx.DoubleType(), "scale")
	_ = ext

	add, _ := m.Function("add")
	plus, _ := m.AddAlias(add, "plus")

	// bump() i32 { v = load counter; v' = v + 1; store; ret plus(v', 2) }
	i32 := ctx.Int32Type()
	bump, _ := m.AddFunction("bump", ctx.FunctionType(i32))
	bump.SetLinkage(Internal)
	b := NewBuilder(ctx)
	b.PositionAtEnd(bump.Append("entry"))
	v := b.Load(counter)
	next := b.Add(v, Compile(ctx, int32(1)))
	b.Store(next, counter)
	b.Ret(b.Call(plus, next, Compile(ctx, int32(2))))

	if err := m.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return m
}

func TestBitcode_RoundTrip(t *testing.T) {
	src := NewContext()
	defer src.Dispose()
	m := buildRich(t, src)

	data, err := m.MarshalBitcode()
	if err != nil {
		t.Fatalf("MarshalBitcode: %v", err)
	}
	if !IsBitcode(data) {
		t.Fatal("output lacks the bitcode magic")
	}

	dst := NewContext()
	defer dst.Dispose()
	got, err := dst.ParseBitcode(data)
	if err != nil {
		t.Fatalf("ParseBitcode: %v", err)
	}
	if err := got.Verify(); err != nil {
		t.Fatalf("Verify after load: %v", err)
	}
	if got.String() != m.String() {
		t.Errorf("round trip changed the module\ngot:\n%s\nwant:\n%s", got, m)
	}
}

func TestBitcode_File(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()
	m, _ := buildAdd(t, ctx, "file")

	path := filepath.Join(t.TempDir(), "file.irbc")
	if err := m.WriteBitcodeFile(path); err != nil {
		t.Fatalf("WriteBitcodeFile: %v", err)
	}

	other := NewContext()
	defer other.Dispose()
	got, err := other.ReadBitcodeFile(path)
	if err != nil {
		t.Fatalf("ReadBitcodeFile: %v", err)
	}
	if _, ok := got.Function("add"); !ok {
		t.Error("add missing after load")
	}
}

func TestBitcode_Errors(t *testing.T) {
	ctx := NewContext()
	defer ctx.Dispose()

	m, _ := buildAdd(t, ctx, "dup")
	var buf bytes.Buffer
	if err := m.WriteBitcode(&buf); err != nil {
		t.Fatalf("WriteBitcode: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want *irerrors.Error
	}{
		{"no magic", []byte("nope"), &irerrors.Error{Kind: irerrors.KindInvalidData}},
		{"truncated", buf.Bytes()[:8], &irerrors.Error{Kind: irerrors.KindInvalidData}},
		{"name taken", buf.Bytes(), irerrors.ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctx.ParseBitcode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want kind %s", err, tt.want.Kind)
			}
		})
	}
	if len(ctx.Modules()) != 1 {
		t.Errorf("failed loads should not leave modules behind, have %d", len(ctx.Modules()))
	}
}
