// Package scale models the coordinate vocabulary of the browser core:
// Scale (the logarithmic zoom level that determines carriage size) and
// Stick (an identified linear coordinate axis such as a chromosome).
package scale

import (
	"fmt"
	"math"

	"github.com/joeycumines/dauphin/diag"
)

// milestoneGap is the spacing between "milestone" scales, coarse levels
// rendered eagerly so zoom animations always have something to show.
const milestoneGap = 4

// Scale is a logarithmic zoom level: a carriage at Scale s covers 2^s
// base pairs.
type Scale uint64

// New builds a Scale directly from its index.
func New(index uint64) Scale { return Scale(index) }

// NewBPPerScreen returns the Scale whose carriage size best matches a
// viewport showing bpPerScreen base pairs.
func NewBPPerScreen(bpPerScreen float64) Scale {
	return Scale(uint64(math.Floor(math.Log2(bpPerScreen))))
}

// Index returns the raw scale index.
func (s Scale) Index() uint64 { return uint64(s) }

// BPInCarriage returns the number of base pairs one carriage covers at
// this scale.
func (s Scale) BPInCarriage() uint64 { return 1 << s }

// BPPerScreenRange returns the [min,max] bp-per-screen interval for which
// this scale is the best match.
func (s Scale) BPPerScreenRange() (uint64, uint64) {
	bp := s.BPInCarriage()
	return bp, bp*2 - 1
}

// Delta returns the scale amt levels away, or false if that would go
// below zero.
func (s Scale) Delta(amt int64) (Scale, bool) {
	n := int64(s) + amt
	if n < 0 {
		return 0, false
	}
	return Scale(n), true
}

// IsMilestone reports whether this scale is a milestone level.
func (s Scale) IsMilestone() bool { return s%milestoneGap == 0 }

// ToMilestone rounds up to the nearest milestone scale.
func (s Scale) ToMilestone() Scale {
	return ((s + milestoneGap - 1) / milestoneGap) * milestoneGap
}

// ConvertIndex maps a carriage index at oldScale to the corresponding
// carriage index at this scale. Zooming out the old carriage is entirely
// contained in the new one; zooming in the centre child is chosen.
func (s Scale) ConvertIndex(oldScale Scale, oldIndex uint64) uint64 {
	logFactor := int64(s) - int64(oldScale)
	if logFactor >= 0 {
		return oldIndex / (1 << uint(logFactor))
	}
	left := oldIndex * (1 << uint(-logFactor))
	return left + (1 << uint(-logFactor-1))
}

// Carriage returns the index of the carriage containing position at this
// scale.
func (s Scale) Carriage(position float64) uint64 {
	return uint64(math.Floor(position / float64(s.BPInCarriage())))
}

func (s Scale) String() string { return fmt.Sprintf("%d", uint64(s)) }

// StickID names a stick, e.g. "homo_sapiens:1".
type StickID string

// StickTopology distinguishes linear axes from circular ones (plasmids,
// mitochondria).
type StickTopology uint8

const (
	Linear StickTopology = iota
	Circular
)

// TopologyFromNumber decodes the wire representation of a topology.
func TopologyFromNumber(n uint8) (StickTopology, error) {
	switch n {
	case 0:
		return Linear, nil
	case 1:
		return Circular, nil
	default:
		return 0, diag.Operr("unknown topology")
	}
}

// Number returns the wire representation of the topology.
func (t StickTopology) Number() uint8 { return uint8(t) }

// Stick is an identified linear coordinate axis: its id, its length in
// base pairs, its topology, and free-form tags. Identity is the id alone.
type Stick struct {
	ID       StickID
	Size     uint64
	Topology StickTopology
	Tags     map[string]struct{}
}

// NewStick builds a Stick from its parts.
func NewStick(id StickID, size uint64, topology StickTopology, tags []string) *Stick {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return &Stick{ID: id, Size: size, Topology: topology, Tags: set}
}

// HasTag reports whether the stick carries tag.
func (s *Stick) HasTag(tag string) bool {
	_, ok := s.Tags[tag]
	return ok
}
