package wire_test

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/joeycumines/dauphin/reqmgr"
	"github.com/joeycumines/dauphin/wire"
	"github.com/stretchr/testify/require"
)

func TestMaxiRequestRoundTrip(t *testing.T) {
	req := reqmgr.MaxiRequest{
		Destination: "backend:main",
		Version:     "15",
		Minis: []reqmgr.MiniRequest{
			{ID: 1, Kind: reqmgr.Boot, Destination: "backend:main", Priority: reqmgr.RealTime},
			{ID: 2, Kind: reqmgr.Data, Destination: "backend:main", Priority: reqmgr.Batch, Body: "chr1:1000-2000"},
		},
	}

	data, err := wire.EncodeMaxiRequest(req)
	require.NoError(t, err)

	got, err := wire.DecodeMaxiRequest(data)
	require.NoError(t, err)
	require.Equal(t, req.Destination, got.Destination)
	require.Equal(t, req.Version, got.Version)
	require.Len(t, got.Minis, 2)

	for i := range req.Minis {
		require.Equal(t, req.Minis[i].ID, got.Minis[i].ID)
		require.Equal(t, req.Minis[i].Kind, got.Minis[i].Kind)
		require.Equal(t, req.Minis[i].Priority, got.Minis[i].Priority)
		require.Equal(t, req.Minis[i].Destination, got.Minis[i].Destination)
	}

	// Bodies travel as raw CBOR, decoded by the receiver per Kind.
	var body string
	require.NoError(t, cbor.Unmarshal(got.Minis[1].Body.(cbor.RawMessage), &body))
	require.Equal(t, "chr1:1000-2000", body)
	require.Nil(t, got.Minis[0].Body)
}

func TestMaxiResponseRoundTrip(t *testing.T) {
	resp := reqmgr.MaxiResponse{
		Minis: []reqmgr.MiniResponse{
			{ID: 7, Status: reqmgr.Success, Value: uint64(42)},
			{ID: 3, Status: reqmgr.GeneralFailure, Message: "backend busy"},
			{ID: 9, Status: reqmgr.Unavailable, Message: "BadVersion"},
		},
	}

	data, err := wire.EncodeMaxiResponse(resp)
	require.NoError(t, err)

	got, err := wire.DecodeMaxiResponse(data)
	require.NoError(t, err)
	require.Len(t, got.Minis, 3)

	// Correlated by id, not position: ids survive intact.
	require.Equal(t, reqmgr.MessageID(7), got.Minis[0].ID)
	require.Equal(t, reqmgr.MessageID(3), got.Minis[1].ID)
	require.Equal(t, reqmgr.Status(reqmgr.GeneralFailure), got.Minis[1].Status)
	require.Equal(t, "backend busy", got.Minis[1].Message)
	require.Equal(t, "BadVersion", got.Minis[2].Message)

	var value uint64
	require.NoError(t, cbor.Unmarshal(got.Minis[0].Value.(cbor.RawMessage), &value))
	require.Equal(t, uint64(42), value)
}
