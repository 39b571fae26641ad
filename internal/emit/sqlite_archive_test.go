package emit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteArchiveRebuildsHistory(t *testing.T) {
	ctx := context.Background()
	archive, err := NewInMemoryArchive(ctx, "run-a", "multipath", nil)
	require.NoError(t, err)
	defer archive.Close()

	em := NewEmitter(archive, true, nil)
	steps := fixtureSteps()
	for _, st := range steps {
		_, err := em.Emit(ctx, st.timeNs, st.bw, st.table)
		require.NoError(t, err)
	}

	for _, st := range steps {
		table, err := archive.TableAt(ctx, "run-a", st.timeNs, fixtureSatellites)
		require.NoError(t, err)
		assert.True(t, table.Equal(st.table), "step %d: rebuilt %v, want %v", st.timeNs, table.Records(), st.table.Records())

		bw, err := archive.BandwidthAt(ctx, "run-a", st.timeNs)
		require.NoError(t, err)
		assert.Equal(t, st.bw.Records(), bw)
	}

	summaries, err := archive.Steps(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, summaries, len(steps))
	assert.True(t, summaries[0].Full)
	assert.False(t, summaries[1].Full)
	assert.Equal(t, 1, summaries[1].Records)
	assert.Equal(t, "multipath", summaries[0].Policy)
	assert.True(t, summaries[0].Tagged)

	runs, err := archive.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a"}, runs)
}

func TestSQLiteArchiveRewriteReplacesStep(t *testing.T) {
	ctx := context.Background()
	archive, err := NewInMemoryArchive(ctx, "run-b", "single", nil)
	require.NoError(t, err)
	defer archive.Close()

	st := fixtureSteps()[0]
	step := Step{TimeNs: 0, Bandwidth: st.bw.Records(), Records: st.table.Records(), Table: st.table, Full: true}
	require.NoError(t, archive.Write(ctx, step))
	require.NoError(t, archive.Write(ctx, step))

	summaries, err := archive.Steps(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, st.table.Len(), summaries[0].Records)

	table, err := archive.TableAt(ctx, "run-b", 0, fixtureSatellites)
	require.NoError(t, err)
	assert.True(t, table.Equal(st.table))
}

func TestSQLiteArchiveOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive", "routes.db")

	archive, err := NewSQLiteArchive(ctx, path, "run-c", "single", nil)
	require.NoError(t, err)
	st := fixtureSteps()[2]
	require.NoError(t, archive.Write(ctx, Step{TimeNs: 200, Bandwidth: st.bw.Records(), Records: st.table.Records(), Full: true}))
	require.NoError(t, archive.Close())

	reopened, err := NewSQLiteArchive(ctx, path, "run-d", "single", nil)
	require.NoError(t, err)
	defer reopened.Close()

	table, err := reopened.TableAt(ctx, "run-c", 1000, fixtureSatellites)
	require.NoError(t, err)
	assert.True(t, table.Equal(st.table))

	empty, err := reopened.TableAt(ctx, "run-d", 1000, fixtureSatellites)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}
