package loader_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/dauphin/diag"
	"github.com/joeycumines/dauphin/instr"
	"github.com/joeycumines/dauphin/loader"
	"github.com/joeycumines/dauphin/reqmgr"
	"github.com/joeycumines/dauphin/wire"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	fn func(ctx context.Context, priority reqmgr.Priority, req reqmgr.MaxiRequest) (reqmgr.MaxiResponse, error)
}

func (s *fakeSender) Send(ctx context.Context, priority reqmgr.Priority, req reqmgr.MaxiRequest) (reqmgr.MaxiResponse, error) {
	return s.fn(ctx, priority, req)
}

type fakeIntegration struct {
	senders map[reqmgr.Destination]reqmgr.Sender
}

func (f *fakeIntegration) SenderFor(dest reqmgr.Destination) (reqmgr.Sender, error) {
	return f.senders[dest], nil
}

func buildBundle(t *testing.T) wire.Bundle {
	t.Helper()
	code, err := wire.EncodeProgram("track-1", "bob", 1700000000000, "", 0, []instr.Instruction{
		{Opcode: 1},
	})
	require.NoError(t, err)
	return wire.Bundle{BundleName: "bundle-1", CodeBytes: code}
}

func TestLoadFindsProgramOnSecondChannel(t *testing.T) {
	bundle := buildBundle(t)
	miss := &fakeSender{fn: func(_ context.Context, _ reqmgr.Priority, req reqmgr.MaxiRequest) (reqmgr.MaxiResponse, error) {
		resp := reqmgr.MaxiResponse{}
		for _, mini := range req.Minis {
			resp.Minis = append(resp.Minis, reqmgr.MiniResponse{ID: mini.ID, Status: reqmgr.GeneralFailure, Message: "not found"})
		}
		return resp, nil
	}}
	hit := &fakeSender{fn: func(_ context.Context, _ reqmgr.Priority, req reqmgr.MaxiRequest) (reqmgr.MaxiResponse, error) {
		resp := reqmgr.MaxiResponse{}
		for _, mini := range req.Minis {
			resp.Minis = append(resp.Minis, reqmgr.MiniResponse{ID: mini.ID, Status: reqmgr.Success, Value: bundle})
		}
		return resp, nil
	}}

	integration := &fakeIntegration{senders: map[reqmgr.Destination]reqmgr.Sender{
		"primary":   miss,
		"secondary": hit,
	}}
	mgr := reqmgr.NewManager(integration, nil)
	lm := loader.NewManager(mgr, []reqmgr.Destination{"primary", "secondary"})

	var seq atomic.Uint64
	loaded, err := lm.Load(context.Background(), loader.ProgramName{Set: "tracks", Name: "track-1", Version: 1}, func() reqmgr.MessageID {
		return reqmgr.MessageID(seq.Add(1))
	})
	require.NoError(t, err)
	require.Equal(t, "bundle-1", loaded.Bundle.BundleName)
	require.Len(t, loaded.Program.Instructions, 1)
}

func TestLoadFailsWhenNoChannelHasIt(t *testing.T) {
	miss := &fakeSender{fn: func(_ context.Context, _ reqmgr.Priority, req reqmgr.MaxiRequest) (reqmgr.MaxiResponse, error) {
		resp := reqmgr.MaxiResponse{}
		for _, mini := range req.Minis {
			resp.Minis = append(resp.Minis, reqmgr.MiniResponse{ID: mini.ID, Status: reqmgr.GeneralFailure, Message: "not found"})
		}
		return resp, nil
	}}
	integration := &fakeIntegration{senders: map[reqmgr.Destination]reqmgr.Sender{"only": miss}}
	mgr := reqmgr.NewManager(integration, &reqmgr.Config{Backoff: nil})
	lm := loader.NewManager(mgr, []reqmgr.Destination{"only"})

	var seq atomic.Uint64
	_, err := lm.Load(context.Background(), loader.ProgramName{Set: "tracks", Name: "missing", Version: 1}, func() reqmgr.MessageID {
		return reqmgr.MessageID(seq.Add(1))
	})
	require.Error(t, err)
}

func TestLoadFailsFatallyOnUnexpectedPayload(t *testing.T) {
	bad := &fakeSender{fn: func(_ context.Context, _ reqmgr.Priority, req reqmgr.MaxiRequest) (reqmgr.MaxiResponse, error) {
		resp := reqmgr.MaxiResponse{}
		for _, mini := range req.Minis {
			resp.Minis = append(resp.Minis, reqmgr.MiniResponse{ID: mini.ID, Status: reqmgr.Success, Value: "not a bundle"})
		}
		return resp, nil
	}}
	integration := &fakeIntegration{senders: map[reqmgr.Destination]reqmgr.Sender{"only": bad}}
	mgr := reqmgr.NewManager(integration, nil)
	lm := loader.NewManager(mgr, []reqmgr.Destination{"only"})

	var seq atomic.Uint64
	_, err := lm.Load(context.Background(), loader.ProgramName{Set: "tracks", Name: "track-1", Version: 1}, func() reqmgr.MessageID {
		return reqmgr.MessageID(seq.Add(1))
	})
	require.Error(t, err)
	var derr *diag.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, diag.Fatal, derr.Kind)
}

func TestApplySettingsFillsMissingDefaults(t *testing.T) {
	bundle := wire.Bundle{Specs: wire.ProgramSpec{Settings: map[string]wire.SettingDefault{
		"zoom": {Kind: wire.SettingInt, Int: 1},
	}}}
	merged := loader.ApplySettings(bundle, nil)
	require.Equal(t, int64(1), merged["zoom"].Int)
}
