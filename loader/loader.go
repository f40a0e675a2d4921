// Package loader implements the program loader and bundle installer:
// resolve a ProgramName to a bundle by fanning a Program mini-request out
// across every registered channel, install the winning bundle into the
// VM, and fill missing runtime settings from the bundle's declared
// defaults.
package loader

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/memo"
	"github.com/joeycumines/dauphin/reqmgr"
	"github.com/joeycumines/dauphin/vm"
	"github.com/joeycumines/dauphin/wire"
)

// ProgramName identifies a loadable program.
type ProgramName struct {
	Set     string
	Name    string
	Version uint32
}

func (n ProgramName) String() string {
	return fmt.Sprintf("%s/%s@%d", n.Set, n.Name, n.Version)
}

// Loaded is what the loader hands back once a program is resolved and
// decoded: the linkable program ready for vm.NewInstance, plus the bundle
// metadata that produced it.
type Loaded struct {
	Bundle  wire.Bundle
	Meta    wire.Program
	Program *vm.Program
}

// Manager resolves ProgramNames to Loaded bundles, memoizing successful
// loads and skipping reinstall of bundles whose content is unchanged.
type Manager struct {
	requests *reqmgr.Manager
	channels []reqmgr.Destination
	cache    *memo.Store[ProgramName, Loaded]

	digests map[ProgramName]string
}

// NewManager builds a loader fanning Program searches out across channels.
func NewManager(requests *reqmgr.Manager, channels []reqmgr.Destination) *Manager {
	return &Manager{
		requests: requests,
		channels: channels,
		cache:    memo.NewStore[ProgramName, Loaded](),
		digests:  make(map[ProgramName]string),
	}
}

// Load resolves name, searching every registered channel concurrently and
// taking the first channel to actually supply the bundle. A memoized hit
// returns without any network activity. If no channel supplies the
// program, Load fails with "program did not load".
func (m *Manager) Load(ctx context.Context, name ProgramName, messageID func() reqmgr.MessageID) (Loaded, error) {
	return m.cache.Get(name, func() (Loaded, error) {
		return m.search(ctx, name, messageID)
	})
}

func (m *Manager) search(ctx context.Context, name ProgramName, messageID func() reqmgr.MessageID) (Loaded, error) {
	if len(m.channels) == 0 {
		return Loaded{}, diag.Operr("program did not load")
	}

	type found struct {
		bundle wire.Bundle
	}
	results := make(chan found, len(m.channels))

	g, gctx := errgroup.WithContext(ctx)
	for _, dest := range m.channels {
		dest := dest
		g.Go(func() error {
			resp, err := m.requests.Dispatch(gctx, reqmgr.MiniRequest{
				ID:          messageID(),
				Kind:        reqmgr.Program,
				Destination: dest,
				Priority:    reqmgr.RealTime,
				Body:        name,
			})
			if err != nil {
				var derr *diag.Error
				if errors.As(err, &derr) && derr.Kind == diag.Fatal {
					return err
				}
				// Not finding it on one channel is not itself fatal; only
				// exhausting every channel is (handled by the caller).
				return nil
			}
			if resp.Status != reqmgr.Success {
				return nil
			}
			bundle, ok := resp.Value.(wire.Bundle)
			if !ok {
				// A success that doesn't carry a bundle is a protocol
				// violation, not a miss.
				return diag.New(diag.Fatal, diag.Code{Namespace: "loader", Number: 3}, "channel %s returned unexpected payload for program %s", dest, name)
			}
			select {
			case results <- found{bundle: bundle}:
			default:
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var derr *diag.Error
		if errors.As(err, &derr) {
			return Loaded{}, err
		}
		return Loaded{}, diag.Wrap(diag.Operational, diag.Code{Namespace: "loader", Number: 1}, err, "searching channels for %s", name)
	}

	select {
	case f := <-results:
		return m.install(name, f.bundle)
	default:
		return Loaded{}, diag.Operr("program did not load")
	}
}

// install decodes bundle's code bytes into a linkable program, skipping
// redundant work if this exact content was already installed for name.
func (m *Manager) install(name ProgramName, bundle wire.Bundle) (Loaded, error) {
	digest := bundle.ContentDigest()
	if prior, ok := m.digests[name]; ok && prior == digest {
		if cached, ok := m.cache.Peek(name); ok {
			return cached, nil
		}
	}

	meta, instructions, err := wire.DecodeProgram(bundle.CodeBytes)
	if err != nil {
		return Loaded{}, diag.Wrap(diag.Operational, diag.Code{Namespace: "loader", Number: 2}, err, "decode bundle %s", bundle.BundleName)
	}

	m.digests[name] = digest

	return Loaded{
		Bundle:  bundle,
		Meta:    meta,
		Program: &vm.Program{Instructions: instructions},
	}, nil
}

// ApplySettings fills any setting missing from provided with bundle's
// declared default.
func ApplySettings(bundle wire.Bundle, provided map[string]wire.SettingDefault) map[string]wire.SettingDefault {
	return bundle.Specs.ApplyDefaults(provided)
}
