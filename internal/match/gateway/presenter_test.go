package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
)

func drainBroadcasts(cm *ConnectionManager) []BroadcastMessage {
	var out []BroadcastMessage
	for {
		select {
		case m := <-cm.broadcastCh:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestSendMintsRefAndBroadcasts(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	p := NewPresenter(cm)

	ref, err := p.Send(context.Background(), 42, engine.Content{Kind: engine.ContentOfferUnified}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	msgs := drainBroadcasts(cm)
	require.Len(t, msgs, 1)
	require.Equal(t, int64(42), msgs[0].ChatID)
	require.Equal(t, EventTypeMessagePosted, msgs[0].Event.Type)
	require.Equal(t, ref, msgs[0].Event.Ref)
}

func TestUpdateEditsSameRef(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	p := NewPresenter(cm)

	ref, err := p.Send(context.Background(), 42, engine.Content{Kind: engine.ContentOfferUnified}, nil)
	require.NoError(t, err)
	drainBroadcasts(cm)

	err = p.Update(context.Background(), ref, engine.Content{Kind: engine.ContentChoice}, nil)
	require.NoError(t, err)

	msgs := drainBroadcasts(cm)
	require.Len(t, msgs, 1)
	require.Equal(t, EventTypeMessageEdited, msgs[0].Event.Type)
	require.Equal(t, ref, msgs[0].Event.Ref)
}

func TestUpdateUnchangedContentReturnsSentinel(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	p := NewPresenter(cm)

	content := engine.Content{Kind: engine.ContentChoice, Data: map[string]any{"bet_amount": int64(50)}}
	ref, err := p.Send(context.Background(), 42, content, nil)
	require.NoError(t, err)
	drainBroadcasts(cm)

	err = p.Update(context.Background(), ref, content, nil)
	require.ErrorIs(t, err, engine.ErrContentUnchanged)
	require.Empty(t, drainBroadcasts(cm))
}

func TestUpdateUnknownRefFails(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	p := NewPresenter(cm)

	err := p.Update(context.Background(), "no-such-ref", engine.Content{Kind: engine.ContentChoice}, nil)
	require.Error(t, err)
}

func TestTerminalUpdateForgetsRef(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	p := NewPresenter(cm)

	ref, err := p.Send(context.Background(), 42, engine.Content{Kind: engine.ContentCall}, nil)
	require.NoError(t, err)

	err = p.Update(context.Background(), ref, engine.Content{Kind: engine.ContentResult}, nil)
	require.NoError(t, err)

	err = p.Update(context.Background(), ref, engine.Content{Kind: engine.ContentChoice}, nil)
	require.Error(t, err)
}

func TestAcknowledgeTargetsUser(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	p := NewPresenter(cm)

	require.NoError(t, p.Acknowledge(context.Background(), 7, "not your game"))

	msgs := drainBroadcasts(cm)
	require.Len(t, msgs, 1)
	require.Equal(t, int64(7), msgs[0].UserID)
	require.Equal(t, EventTypeAcknowledged, msgs[0].Event.Type)
	require.Equal(t, "not your game", msgs[0].Event.Text)
}
