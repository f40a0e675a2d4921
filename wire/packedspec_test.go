package wire_test

import (
	"testing"

	"github.com/joeycumines/dauphin/wire"
	"github.com/stretchr/testify/require"
)

func TestDiffSetUnpack(t *testing.T) {
	got, err := wire.DiffSet{5, -2, 0, 4}.Unpack()
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 3, 3, 7}, got)

	_, err = wire.DiffSet{1, -2}.Unpack()
	require.Error(t, err)
}

func packedFixture() *wire.PackedProgramSpec {
	return &wire.PackedProgramSpec{
		// Two programs: tracks/gene-pc@1 and tracks/variant@2.
		Name:         wire.DiffSet{1, 2},
		InBundleName: wire.DiffSet{2, 2},
		Set:          wire.DiffSet{0, 0},
		Version:      wire.DiffSet{1, 1},
		Keys:         []wire.DiffSet{{0}, {1}},
		Defaults:     []wire.DiffSet{{0}, {1}},
		NameIdx:      []string{"tracks", "gene-pc", "gene-pc-inner", "variant", "variant-inner"},
		KeyIdx:       []string{"color", "height"},
		ValueIdx: []wire.SettingDefault{
			{Kind: wire.SettingString, String: "blue"},
			{Kind: wire.SettingInt, Int: 10},
		},
	}
}

func TestPackedProgramSpecToModels(t *testing.T) {
	models, err := packedFixture().ToProgramModels()
	require.NoError(t, err)
	require.Len(t, models, 2)

	require.Equal(t, "tracks", models[0].Set)
	require.Equal(t, "gene-pc", models[0].Name)
	require.Equal(t, "gene-pc-inner", models[0].InBundleName)
	require.Equal(t, uint32(1), models[0].Version)
	require.Equal(t, "blue", models[0].Settings["color"].String)

	require.Equal(t, "variant", models[1].Name)
	require.Equal(t, uint32(2), models[1].Version)
	require.Equal(t, int64(10), models[1].Settings["height"].Int)
}

func TestPackedProgramSpecLengthMismatch(t *testing.T) {
	p := packedFixture()
	p.Version = wire.DiffSet{1}
	_, err := p.ToProgramModels()
	require.Error(t, err)

	p = packedFixture()
	p.Keys[0] = wire.DiffSet{0, 1}
	_, err = p.ToProgramModels()
	require.Error(t, err)
}

func TestPackedProgramSpecBadIndex(t *testing.T) {
	p := packedFixture()
	p.NameIdx = p.NameIdx[:2]
	_, err := p.ToProgramModels()
	require.Error(t, err)
}

func TestBundleProgramModelsPackedRoundTrip(t *testing.T) {
	b := wire.Bundle{
		BundleName: "tracks-bundle",
		CodeBytes:  []byte{1, 2, 3},
		Packed:     packedFixture(),
	}
	data, err := wire.EncodeBundle(b)
	require.NoError(t, err)

	got, err := wire.DecodeBundle(data)
	require.NoError(t, err)

	models, err := got.ProgramModels()
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "gene-pc", models[0].Name)
}

func TestBundleProgramModelsUnpacked(t *testing.T) {
	b := wire.Bundle{
		Models: []wire.ProgramModel{{Set: "tracks", Name: "focus", Version: 3}},
	}
	models, err := b.ProgramModels()
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "focus", models[0].Name)
}
