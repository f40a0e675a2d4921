package wire_test

import (
	"testing"

	"github.com/joeycumines/dauphin/instr"
	"github.com/joeycumines/dauphin/register"
	"github.com/joeycumines/dauphin/wire"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeProgramRoundTrip(t *testing.T) {
	instructions := []instr.Instruction{
		{
			Opcode: 7,
			Operands: []instr.Operand{
				{Kind: instr.OperandRegister, Register: register.Register(2)},
				{Kind: instr.OperandLiteral, Literal: instr.Literal{Kind: instr.LiteralInt, Int: 42}},
			},
		},
		{
			Opcode: 1,
			Operands: []instr.Operand{
				{Kind: instr.OperandUpRegister, Register: register.Register(0)},
			},
		},
	}

	b, err := wire.EncodeProgram("my-track", "alice", 1700000000000, "note", 1, instructions)
	require.NoError(t, err)

	meta, decoded, err := wire.DecodeProgram(b)
	require.NoError(t, err)
	require.Equal(t, "my-track", meta.Name)
	require.Equal(t, uint32(2), meta.InstrCount)
	require.Len(t, decoded, 2)

	require.Equal(t, instr.OperandRegister, decoded[0].Operands[0].Kind)
	require.Equal(t, register.Register(2), decoded[0].Operands[0].Register)
	require.Equal(t, instr.OperandLiteral, decoded[0].Operands[1].Kind)
	require.Equal(t, int64(42), decoded[0].Operands[1].Literal.Int)
	require.Equal(t, instr.OperandUpRegister, decoded[1].Operands[0].Kind)
}

func TestBundleContentDigestStable(t *testing.T) {
	b := wire.Bundle{BundleName: "x", CodeBytes: []byte("hello")}
	require.Equal(t, b.ContentDigest(), b.ContentDigest())

	other := wire.Bundle{BundleName: "x", CodeBytes: []byte("world")}
	require.NotEqual(t, b.ContentDigest(), other.ContentDigest())
}

func TestProgramSpecApplyDefaults(t *testing.T) {
	spec := wire.ProgramSpec{Settings: map[string]wire.SettingDefault{
		"zoom":  {Kind: wire.SettingInt, Int: 1},
		"theme": {Kind: wire.SettingString, String: "dark"},
	}}
	provided := map[string]wire.SettingDefault{
		"zoom": {Kind: wire.SettingInt, Int: 5},
	}
	merged := spec.ApplyDefaults(provided)
	require.Equal(t, int64(5), merged["zoom"].Int)
	require.Equal(t, "dark", merged["theme"].String)
}

func TestEncodeBundleRoundTrip(t *testing.T) {
	b := wire.Bundle{
		BundleName: "chr1-track",
		CodeBytes:  []byte{1, 2, 3},
		Specs: wire.ProgramSpec{Settings: map[string]wire.SettingDefault{
			"color": {Kind: wire.SettingString, String: "blue"},
		}},
	}
	data, err := wire.EncodeBundle(b)
	require.NoError(t, err)

	got, err := wire.DecodeBundle(data)
	require.NoError(t, err)
	require.Equal(t, b.BundleName, got.BundleName)
	require.Equal(t, b.CodeBytes, got.CodeBytes)
	require.Equal(t, "blue", got.Specs.Settings["color"].String)
}
