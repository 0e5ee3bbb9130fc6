package remote

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/style"
)

func drain(t *testing.T, q *Queue) []Command {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cmds, err := q.Next(ctx)
	require.NoError(t, err)
	return cmds
}

func ops(cmds []Command) []Op {
	out := make([]Op, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func TestQueue_NextBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	done := make(chan []Command)
	go func() {
		cmds, _ := q.Next(context.Background())
		done <- cmds
	}()

	q.Push(Command{Op: OpResize})
	select {
	case cmds := <-done:
		require.Len(t, cmds, 1)
		assert.Equal(t, uint64(1), cmds[0].Seq)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake")
	}
}

func TestQueue_DrainsBeforeClosed(t *testing.T) {
	q := NewQueue()
	q.Push(Command{Op: OpResize})
	q.Push(Command{Op: OpRemove})
	q.Close()
	assert.False(t, q.Push(Command{Op: OpResize}))

	cmds := drain(t, q)
	assert.Equal(t, []Op{OpResize, OpRemove}, ops(cmds))

	_, err := q.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_RequeueKeepsOrderAndSeq(t *testing.T) {
	q := NewQueue()
	q.Push(Command{Op: OpCreate})
	q.Push(Command{Op: OpAddSource})
	q.Push(Command{Op: OpAddLayer})
	batch := drain(t, q)
	require.Len(t, batch, 3)

	q.Push(Command{Op: OpRemove})
	q.Close()
	q.Requeue(batch[1:])

	cmds := drain(t, q)
	assert.Equal(t, []Op{OpAddSource, OpAddLayer, OpRemove}, ops(cmds))
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{cmds[0].Seq, cmds[1].Seq, cmds[2].Seq})

	_, err := q.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_ContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_CommandsMirrorCalls(t *testing.T) {
	e := New(engine.Options{Container: "map", Center: orb.Point{-110.4, 36.7}, Zoom: 4}, nil)
	require.NoError(t, e.AddSource(style.SourceStates, style.Source{Type: "geojson", Data: "states.geojson"}))
	require.NoError(t, e.AddLayer(style.Layer{ID: "fills", Type: style.TypeFill, Source: style.SourceStates}, "road-label"))
	require.NoError(t, e.AddLayer(style.Layer{ID: "lines", Type: style.TypeLine, Source: style.SourceStates}, "missing"))
	require.NoError(t, e.SetFeatureState(engine.FeatureRef{Source: style.SourceStates, ID: engine.NumberID(7)}, engine.HoverState(true)))
	require.NoError(t, e.Resize())

	cmds := drain(t, e.Queue())
	assert.Equal(t, []Op{OpCreate, OpAddSource, OpAddLayer, OpAddLayer, OpSetFeatureState, OpResize}, ops(cmds))
	assert.Equal(t, "map", cmds[0].Options.Container)
	assert.Equal(t, "road-label", cmds[2].Before)
	assert.Empty(t, cmds[3].Before)

	data, err := json.Marshal(cmds[4])
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":5,"op":"setFeatureState","feature":{"source":"states","id":7},"state":{"hover":true}}`, string(data))

	assert.True(t, e.FeatureState(engine.FeatureRef{Source: style.SourceStates, ID: engine.NumberID(7)}).Bool(engine.Hover))
}

func TestEngine_RejectedCallsQueueNothing(t *testing.T) {
	e := New(engine.Options{}, nil)
	drain(t, e.Queue())

	err := e.SetFeatureState(engine.FeatureRef{Source: "nope", ID: engine.NumberID(1)}, engine.HoverState(true))
	assert.ErrorIs(t, err, engine.ErrUnknownSource)
	err = e.AddSource(style.SourceComposite, style.Source{Type: "vector"})
	assert.ErrorIs(t, err, engine.ErrDuplicateSource)
	assert.Zero(t, e.Queue().Len())
}

func TestEngine_SubscriptionsRefcounted(t *testing.T) {
	e := New(engine.Options{}, nil)
	drain(t, e.Queue())

	a := e.On(engine.EventMouseMove, "fills", func(engine.Event) {})
	b := e.On(engine.EventMouseMove, "fills", func(engine.Event) {})
	e.On(engine.EventLoad, "", func(engine.Event) {})
	cmds := drain(t, e.Queue())
	require.Len(t, cmds, 1)
	assert.Equal(t, OpSubscribe, cmds[0].Op)
	assert.Equal(t, "fills", cmds[0].LayerID)

	e.Off(a)
	assert.Zero(t, e.Queue().Len())
	e.Off(b)
	cmds = drain(t, e.Queue())
	assert.Equal(t, []Op{OpUnsubscribe}, ops(cmds))
}

func TestEngine_LoadDispatchRemove(t *testing.T) {
	e := New(engine.Options{}, nil)
	var label string
	e.On(engine.EventLoad, "", func(engine.Event) { label = style.FirstLabelLayer(e.Style()) })
	var moved []engine.Feature
	e.On(engine.EventMouseMove, "fills", func(ev engine.Event) { moved = ev.Features })
	var failure error
	e.On(engine.EventError, "", func(ev engine.Event) { failure = ev.Err })

	e.Load([]style.Layer{
		{ID: "bg", Type: style.TypeBackground},
		{ID: "poi-label", Type: style.TypeSymbol, Source: style.SourceComposite, Layout: map[string]any{"text-field": "{name}"}},
	})
	assert.Equal(t, "poi-label", label)

	e.Dispatch(engine.Event{Type: engine.EventMouseMove, Layer: "fills", Features: []engine.Feature{{ID: engine.NumberID(3), Source: "states"}}})
	require.Len(t, moved, 1)

	e.Fail("")
	require.Error(t, failure)
	assert.Equal(t, "unknown engine error", failure.Error())

	drain(t, e.Queue())
	require.NoError(t, e.Remove())
	assert.True(t, e.Removed())
	assert.ErrorIs(t, e.Remove(), engine.ErrRemoved)

	cmds := drain(t, e.Queue())
	assert.Equal(t, []Op{OpRemove}, ops(cmds))
	_, err := e.Queue().Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_SecondLoadKeepsStack(t *testing.T) {
	e := New(engine.Options{}, nil)
	loads := 0
	e.On(engine.EventLoad, "", func(engine.Event) {
		loads++
		require.NoError(t, e.AddSource(style.SourceStates, style.Source{Type: "geojson", Data: "states.geojson"}))
		require.NoError(t, e.AddLayer(style.Layer{ID: "fills", Type: style.TypeFill, Source: style.SourceStates}, "poi-label"))
	})

	base := []style.Layer{
		{ID: "bg", Type: style.TypeBackground},
		{ID: "poi-label", Type: style.TypeSymbol, Source: style.SourceComposite, Layout: map[string]any{"text-field": "{name}"}},
	}
	e.Load(base)
	before := e.Style()
	require.Len(t, before, 3)

	e.Load(base)
	assert.Equal(t, 1, loads)
	assert.Equal(t, before, e.Style())
	assert.True(t, e.Mirror().HasLayer("fills"))
}

func TestFactory(t *testing.T) {
	var got *Engine
	f := Factory(nil, func(e *Engine) { got = e })
	eng, err := f(engine.Options{Container: "map"})
	require.NoError(t, err)
	assert.Same(t, got, eng)
}
