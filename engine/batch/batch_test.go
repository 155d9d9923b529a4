package batch

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{Stride: 4, YField: 1}

var viewport = common.Size{Width: 640, Height: 480}

func record(i int) []float32 {
	f := float32(i)
	return []float32{f, f * 10, f * 100, f * 1000}
}

type recordingBinder struct {
	keys []StateKey
	err  error
}

func (b *recordingBinder) Bind(_ gpu.RenderPass, key StateKey) error {
	b.keys = append(b.keys, key)
	return b.err
}

func newPass(t *testing.T) (*gputest.Device, gpu.RenderPass) {
	t.Helper()
	dev := gputest.NewDevice()
	enc, err := dev.CreateCommandEncoder("frame")
	require.NoError(t, err)
	return dev, enc.BeginRenderPass(&gpu.RenderPassDescriptor{Label: "draw"})
}

func TestGrowthFromFiftyToSeventyFive(t *testing.T) {
	acc := NewAccumulator("sprites", testLayout, WithInitialCapacity(50))
	key := StateKey{Variant: "sprite"}

	for i := range 75 {
		acc.GetBatch(key).Push(record(i))
	}

	require.Len(t, acc.Nodes(), 1)
	n := acc.Nodes()[0]
	assert.Equal(t, 75, n.Counter())
	assert.Equal(t, 75, n.Capacity())
	assert.Equal(t, 1, n.Growths())
}

func TestGrowthPreservesRecords(t *testing.T) {
	acc := NewAccumulator("sprites", testLayout, WithInitialCapacity(3))
	key := StateKey{Variant: "sprite"}

	var want []float32
	for i := range 40 {
		acc.GetBatch(key).Push(record(i))
		want = append(want, record(i)...)

		n := acc.Nodes()[0]
		require.LessOrEqual(t, n.Counter(), n.Capacity())
		require.Equal(t, want, n.Data())
	}
	assert.Greater(t, acc.Nodes()[0].Growths(), 1)
}

func TestStateChangeStartsNewNode(t *testing.T) {
	acc := NewAccumulator("ui", testLayout)
	a, b := StateKey{Variant: "A"}, StateKey{Variant: "B"}

	acc.GetBatch(a).Push(record(0))
	acc.GetBatch(a).Push(record(1))
	acc.GetBatch(b).Push(record(2))

	nodes := acc.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 2, nodes[0].Counter())
	assert.Equal(t, 1, nodes[1].Counter())
}

func TestClipChangeStartsNewNode(t *testing.T) {
	acc := NewAccumulator("ui", testLayout)
	clipA := StateKey{Variant: "panel", Clipped: true, Clip: common.ClipRect{Width: 10, Height: 10}}
	clipB := clipA
	clipB.Clip.X = 5

	acc.GetBatch(clipA).Push(record(0))
	acc.GetBatch(clipB).Push(record(1))
	acc.GetBatch(clipA).Push(record(2))

	assert.Len(t, acc.Nodes(), 3)
}

func TestMaxCapacitySplitsMatchingKey(t *testing.T) {
	acc := NewAccumulator("ui", testLayout, WithInitialCapacity(2), WithMaxCapacity(2))
	key := StateKey{Variant: "A"}
	for i := range 5 {
		acc.GetBatch(key).Push(record(i))
	}

	nodes := acc.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{nodes[0].Counter(), nodes[1].Counter(), nodes[2].Counter()})
}

func TestResetKeepsCapacity(t *testing.T) {
	acc := NewAccumulator("sprites", testLayout, WithInitialCapacity(2))
	key := StateKey{Variant: "sprite"}
	for i := range 10 {
		acc.GetBatch(key).Push(record(i))
	}
	grown := acc.Nodes()[0]
	capacity := grown.Capacity()

	acc.Reset()
	assert.Empty(t, acc.Nodes())
	assert.Zero(t, acc.Instances())

	n := acc.GetBatch(StateKey{Variant: "other"})
	assert.Same(t, grown, n)
	assert.Equal(t, capacity, n.Capacity())
	assert.Zero(t, n.Counter())
	assert.Equal(t, "other", n.Key().Variant)
}

func TestFlushWritesEveryInstanceOnce(t *testing.T) {
	dev, pass := newPass(t)
	acc := NewAccumulator("ui", testLayout, WithInitialCapacity(2))
	keys := []StateKey{{Variant: "A"}, {Variant: "A"}, {Variant: "B"}, {Variant: "B"}, {Variant: "B"}, {Variant: "A"}}
	for i, k := range keys {
		acc.GetBatch(k).Push(record(i))
	}
	binder := &recordingBinder{}

	stats, err := acc.Flush(pass, dev, binder, viewport)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.DrawCalls)
	assert.Equal(t, acc.Instances(), stats.Instances)
	assert.Equal(t, map[string]int{"A": 3, "B": 3}, stats.ByVariant)
	assert.Equal(t, []StateKey{{Variant: "A"}, {Variant: "B"}, {Variant: "A"}}, binder.keys)

	draws := dev.CallsOf(gputest.OpDrawIndexed)
	require.Len(t, draws, 3)
	var drawn uint64
	for _, d := range draws {
		assert.Equal(t, uint64(quadIndices), d.Args[0])
		drawn += d.Args[1]
	}
	assert.Equal(t, uint64(6), drawn)

	// Nodes are written back to back into one buffer.
	writes := dev.CallsOf(gputest.OpWriteBuffer)
	require.Len(t, writes, 3)
	var offset uint64
	for _, w := range writes {
		assert.Equal(t, "ui", w.Label)
		assert.Equal(t, offset, w.Args[0])
		offset += w.Args[1]
	}
	assert.Equal(t, uint64(6*testLayout.Bytes()), offset)
	require.Len(t, dev.Buffers, 1)
	assert.Equal(t, common.SliceToBytes(append(append(record(0), record(1)...), record(2)...)), dev.Buffers[0].Data[:3*testLayout.Bytes()])
}

func TestFlushRecreatesBufferOnGrowth(t *testing.T) {
	dev, pass := newPass(t)
	acc := NewAccumulator("sprites", testLayout, WithInitialCapacity(1))
	key := StateKey{Variant: "sprite"}
	acc.GetBatch(key).Push(record(0))

	_, err := acc.Flush(pass, dev, &recordingBinder{}, viewport)
	require.NoError(t, err)
	require.Len(t, dev.Buffers, 1)

	acc.Reset()
	for i := range 100 {
		acc.GetBatch(key).Push(record(i))
	}
	_, err = acc.Flush(pass, dev, &recordingBinder{}, viewport)
	require.NoError(t, err)

	require.Len(t, dev.Buffers, 2)
	assert.True(t, dev.Buffers[0].Released)
	assert.GreaterOrEqual(t, dev.Buffers[1].Size(), uint64(100*testLayout.Bytes()))
}

func TestFlushSetsAndResetsScissor(t *testing.T) {
	dev, pass := newPass(t)
	acc := NewAccumulator("ui", testLayout)
	clipped := StateKey{Variant: "rect", Clipped: true, Clip: common.ClipRect{X: 600, Y: 10, Width: 100, Height: 20}}

	acc.GetBatch(clipped).Push(record(0))
	acc.GetBatch(StateKey{Variant: "rect"}).Push(record(1))

	_, err := acc.Flush(pass, dev, &recordingBinder{}, viewport)
	require.NoError(t, err)

	scissors := dev.CallsOf(gputest.OpSetScissorRect)
	require.Len(t, scissors, 2)
	assert.Equal(t, []uint64{600, 10, 40, 20}, scissors[0].Args)
	assert.Equal(t, []uint64{0, 0, 640, 480}, scissors[1].Args)
}

func TestFlushRejectsMisalignedDataBeforeWriting(t *testing.T) {
	dev, pass := newPass(t)
	acc := NewAccumulator("glyphs", testLayout)
	acc.GetBatch(StateKey{Variant: "a"}).Push(record(0))
	acc.GetBatch(StateKey{Variant: "b"}).AppendRaw([]float32{1, 2, 3})

	_, err := acc.Flush(pass, dev, &recordingBinder{}, viewport)
	require.ErrorIs(t, err, ErrDataShape)
	assert.Empty(t, dev.CallsOf(gputest.OpWriteBuffer))
	assert.Empty(t, dev.CallsOf(gputest.OpDrawIndexed))
}

func TestFlushPropagatesBinderError(t *testing.T) {
	dev, pass := newPass(t)
	acc := NewAccumulator("ui", testLayout)
	acc.GetBatch(StateKey{Variant: "a"}).Push(record(0))

	boom := errors.New("no pipeline")
	_, err := acc.Flush(pass, dev, &recordingBinder{err: boom}, viewport)
	assert.ErrorIs(t, err, boom)
}

func TestPushWrongStridePanics(t *testing.T) {
	acc := NewAccumulator("ui", testLayout)
	assert.Panics(t, func() { acc.GetBatch(StateKey{}).Push([]float32{1}) })
}

func TestAppendRawGrows(t *testing.T) {
	acc := NewAccumulator("glyphs", testLayout, WithInitialCapacity(1))
	n := acc.GetBatch(StateKey{Variant: "glyph"})
	run := make([]float32, 0, 40)
	for i := range 10 {
		run = append(run, record(i)...)
	}
	n.AppendRaw(run)

	assert.Equal(t, 10, n.Counter())
	assert.GreaterOrEqual(t, n.Capacity(), 10)
	assert.Equal(t, run, n.Data())
	assert.NoError(t, n.Validate())
}
