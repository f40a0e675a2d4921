package wire

import (
	"github.com/joeycumines/dauphin/diag"
)

// DiffSet is a delta-compressed column of non-negative integers: each
// element is stored as the difference from its predecessor, so columns of
// clustered indices (the common case for index-table references) compress
// tightly under CBOR's small-integer encoding.
type DiffSet []int64

// Unpack expands the deltas back into absolute values.
func (d DiffSet) Unpack() ([]uint64, error) {
	out := make([]uint64, len(d))
	var acc int64
	for i, delta := range d {
		acc += delta
		if acc < 0 {
			return nil, diag.Operr("bad track packet")
		}
		out[i] = uint64(acc)
	}
	return out, nil
}

// ProgramModel is one unpacked program description from a bundle's spec
// table: which program it is, the name it goes by inside the bundle's
// code blob, and its declared settings with defaults.
type ProgramModel struct {
	Set          string                    `cbor:"set"`
	Name         string                    `cbor:"name"`
	Version      uint32                    `cbor:"version"`
	InBundleName string                    `cbor:"in_bundle_name"`
	Settings     map[string]SettingDefault `cbor:"settings"`
}

// Spec returns the model's settings as a ProgramSpec, for feeding
// ApplyDefaults.
func (m ProgramModel) Spec() ProgramSpec { return ProgramSpec{Settings: m.Settings} }

// PackedProgramSpec is the columnar delivery form of a bundle's program
// specs: parallel DiffSet columns, one row per program, whose values
// index into the shared string/value tables below.
type PackedProgramSpec struct {
	Name         DiffSet   `cbor:"name"`
	InBundleName DiffSet   `cbor:"in_bundle_name"`
	Set          DiffSet   `cbor:"set"`
	Version      DiffSet   `cbor:"version"`
	Keys         []DiffSet `cbor:"keys"`
	Defaults     []DiffSet `cbor:"defaults"`

	NameIdx  []string         `cbor:"name_idx"`
	KeyIdx   []string         `cbor:"key_idx"`
	ValueIdx []SettingDefault `cbor:"value_idx"`
}

func lookupString(idx uint64, table []string) (string, error) {
	if idx >= uint64(len(table)) {
		return "", diag.Operr("bad track packet")
	}
	return table[idx], nil
}

// ToProgramModels decodes the columnar form into one ProgramModel per row.
// All track columns must be the same length, as must each row's keys and
// defaults columns.
func (p *PackedProgramSpec) ToProgramModels() ([]ProgramModel, error) {
	n := len(p.Name)
	if len(p.InBundleName) != n || len(p.Set) != n || len(p.Version) != n ||
		len(p.Keys) != n || len(p.Defaults) != n {
		return nil, diag.Operr("bad packet: lengths don't match")
	}

	names, err := p.Name.Unpack()
	if err != nil {
		return nil, err
	}
	inBundle, err := p.InBundleName.Unpack()
	if err != nil {
		return nil, err
	}
	sets, err := p.Set.Unpack()
	if err != nil {
		return nil, err
	}
	versions, err := p.Version.Unpack()
	if err != nil {
		return nil, err
	}

	out := make([]ProgramModel, 0, n)
	for i := 0; i < n; i++ {
		set, err := lookupString(sets[i], p.NameIdx)
		if err != nil {
			return nil, err
		}
		name, err := lookupString(names[i], p.NameIdx)
		if err != nil {
			return nil, err
		}
		inBundleName, err := lookupString(inBundle[i], p.NameIdx)
		if err != nil {
			return nil, err
		}

		if len(p.Keys[i]) != len(p.Defaults[i]) {
			return nil, diag.Operr("bad packet: lengths don't match")
		}
		keys, err := p.Keys[i].Unpack()
		if err != nil {
			return nil, err
		}
		defaults, err := p.Defaults[i].Unpack()
		if err != nil {
			return nil, err
		}

		settings := make(map[string]SettingDefault, len(keys))
		for j := range keys {
			key, err := lookupString(keys[j], p.KeyIdx)
			if err != nil {
				return nil, err
			}
			if defaults[j] >= uint64(len(p.ValueIdx)) {
				return nil, diag.Operr("bad track packet")
			}
			settings[key] = p.ValueIdx[defaults[j]]
		}

		out = append(out, ProgramModel{
			Set:          set,
			Name:         name,
			Version:      uint32(versions[i]),
			InBundleName: inBundleName,
			Settings:     settings,
		})
	}
	return out, nil
}
