package register_test

import (
	"testing"

	"github.com/joeycumines/dauphin/register"
	"github.com/stretchr/testify/require"
)

func TestWriteAndGet(t *testing.T) {
	f := register.NewFile(2)
	require.NoError(t, f.Write(0, &register.Value{Kind: register.KindNumbers, Numbers: []float64{1, 2, 3}}))

	v, err := f.Get(0)
	require.NoError(t, err)
	require.Equal(t, 3, v.Len())
}

func TestCopyOnWrite(t *testing.T) {
	f := register.NewFile(2)
	require.NoError(t, f.Write(0, &register.Value{Kind: register.KindStrings, Strings: []string{"a", "b"}}))
	require.NoError(t, f.Copy(1, 0))

	excl, err := f.GetExclusive(1)
	require.NoError(t, err)
	excl.Strings[0] = "mutated"

	original, err := f.GetShared(0)
	require.NoError(t, err)
	require.Equal(t, "a", original.Strings[0], "exclusive mutation must not leak back to the source register")
}

func TestOutOfRangeIsFatal(t *testing.T) {
	f := register.NewFile(1)
	_, err := f.Get(5)
	require.Error(t, err)
}

func TestContextPayloadLazyInstantiation(t *testing.T) {
	key := register.PayloadKey{Library: "draw", Name: "canvas"}
	var torn bool
	ctx := register.NewContext(register.NewFile(0), map[register.PayloadKey]register.PayloadFactory{
		key: func() register.Payload { return &fakePayload{torn: &torn} },
	})

	p1, err := ctx.Payload(key)
	require.NoError(t, err)
	p2, err := ctx.Payload(key)
	require.NoError(t, err)
	require.Same(t, p1, p2, "a payload is instantiated once per context")

	ctx.Finish()
	require.True(t, torn)
}

func TestContextMissingFactoryIsNoSuch(t *testing.T) {
	ctx := register.NewContext(register.NewFile(0), nil)
	_, err := ctx.Payload(register.PayloadKey{Library: "missing", Name: "x"})
	require.Error(t, err)
}

type fakePayload struct{ torn *bool }

func (p *fakePayload) Teardown() { *p.torn = true }
