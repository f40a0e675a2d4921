package wire

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/joeycumines/dauphin/diag"
)

// SettingKind discriminates a ProgramSpec setting's typed default value.
type SettingKind uint8

const (
	SettingInt SettingKind = iota
	SettingFloat
	SettingBool
	SettingString
)

// SettingDefault is one typed default value a ProgramSpec declares for a
// named runtime setting.
type SettingDefault struct {
	Kind   SettingKind `cbor:"kind"`
	Int    int64       `cbor:"int,omitempty"`
	Float  float64     `cbor:"float,omitempty"`
	Bool   bool        `cbor:"bool,omitempty"`
	String string      `cbor:"string,omitempty"`
}

// ProgramSpec declares a bundle's runtime settings with typed defaults;
// settings missing from the caller are filled in from here before
// execution.
type ProgramSpec struct {
	Settings map[string]SettingDefault `cbor:"settings"`
}

// ApplyDefaults returns a copy of provided with any settings from spec's
// defaults filled in where provided is missing them.
func (s ProgramSpec) ApplyDefaults(provided map[string]SettingDefault) map[string]SettingDefault {
	out := make(map[string]SettingDefault, len(s.Settings))
	for k, v := range s.Settings {
		out[k] = v
	}
	for k, v := range provided {
		out[k] = v
	}
	return out
}

// Bundle is a SuppliedBundle: the named code blob a channel hands back in
// response to a Program mini-request. Program specs may
// arrive unpacked (Models) or in the columnar packed form (Packed); use
// ProgramModels to get the unpacked view either way.
type Bundle struct {
	BundleName string             `cbor:"bundle_name"`
	CodeBytes  []byte             `cbor:"code"`
	Specs      ProgramSpec        `cbor:"specs"`
	Models     []ProgramModel     `cbor:"models,omitempty"`
	Packed     *PackedProgramSpec `cbor:"packed,omitempty"`
}

// ProgramModels returns the bundle's program descriptions, decoding the
// packed columnar form if that is how they were delivered.
func (b Bundle) ProgramModels() ([]ProgramModel, error) {
	if b.Packed != nil {
		return b.Packed.ToProgramModels()
	}
	return b.Models, nil
}

// ContentDigest returns a hex-encoded SHA-256 of CodeBytes, used by the
// loader to skip reinstalling a bundle whose bytes are unchanged.
func (b Bundle) ContentDigest() string {
	sum := sha256.Sum256(b.CodeBytes)
	return hex.EncodeToString(sum[:])
}

// EncodeBundle serializes a Bundle to CBOR bytes.
func EncodeBundle(b Bundle) ([]byte, error) {
	out, err := cbor.Marshal(b)
	if err != nil {
		return nil, diag.Wrap(diag.Fatal, diag.Code{Namespace: "wire", Number: 3}, err, "encode bundle %q", b.BundleName)
	}
	return out, nil
}

// DecodeBundle parses a Bundle previously produced by EncodeBundle.
func DecodeBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return Bundle{}, diag.Wrap(diag.Operational, diag.Code{Namespace: "wire", Number: 4}, err, "decode bundle")
	}
	return b, nil
}
