package emit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkReplayReproducesEveryStep(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	em := NewEmitter(sink, true, nil)

	steps := fixtureSteps()
	for _, st := range steps {
		_, err := em.Emit(context.Background(), st.timeNs, st.bw, st.table)
		require.NoError(t, err)
	}

	ids, err := StepFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 100, 200, 300}, ids)

	for _, st := range steps {
		table, err := ReplayDir(dir, st.timeNs, fixtureSatellites)
		require.NoError(t, err)
		assert.True(t, table.Equal(st.table), "step %d: replayed %v, want %v", st.timeNs, table.Records(), st.table.Records())

		bw, err := ReadBandwidthFile(dir, st.timeNs)
		require.NoError(t, err)
		assert.Equal(t, st.bw.Records(), bw)
	}

	// Between steps the earlier table stays in force.
	table, err := ReplayDir(dir, 150, fixtureSatellites)
	require.NoError(t, err)
	assert.True(t, table.Equal(steps[1].table))
}

func TestFileSinkWritesPlainTuples(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	em := NewEmitter(sink, false, nil)

	st := fixtureSteps()[2]
	_, err = em.Emit(context.Background(), 200, st.bw, st.table)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "fstate_200.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0,3,-1,-1,-1\n1,3,-1,-1,-1\n2,3,-1,-1,-1\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must not be left behind")
}

func TestFileSinkRewriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	st := fixtureSteps()[0]
	step := Step{TimeNs: 0, Bandwidth: st.bw.Records(), Records: st.table.Records(), Table: st.table, Full: true}
	require.NoError(t, sink.Write(context.Background(), step))
	require.NoError(t, sink.Write(context.Background(), step))

	table, err := ReplayDir(dir, 0, fixtureSatellites)
	require.NoError(t, err)
	assert.True(t, table.Equal(st.table))
}

func TestFileSinkHonoursCancellation(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Write(ctx, Step{}), context.Canceled)
}

func TestReplayDirMissing(t *testing.T) {
	_, err := ReplayDir(filepath.Join(t.TempDir(), "nope"), 0, 1)
	assert.Error(t, err)
}
