package emit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-router/model"
)

func TestBoltStoreTracksLiveTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.db")
	store, err := OpenBoltStore(path, fixtureSatellites)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Step()
	assert.ErrorIs(t, err, ErrNoStep)

	em := NewEmitter(store, true, nil)
	for _, st := range fixtureSteps() {
		_, err := em.Emit(context.Background(), st.timeNs, st.bw, st.table)
		require.NoError(t, err)

		table, err := store.Table()
		require.NoError(t, err)
		assert.True(t, table.Equal(st.table), "step %d: live %v, want %v", st.timeNs, table.Records(), st.table.Records())
		assert.Equal(t, st.table.Len(), store.Count())

		ns, err := store.Step()
		require.NoError(t, err)
		assert.Equal(t, st.timeNs, ns)

		bw, err := store.Bandwidth(-1)
		require.NoError(t, err)
		assert.Equal(t, st.bw.Records(), bw)
	}

	recs, err := store.Lookup(2, 3)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].PathID)

	gs, err := store.Bandwidth(2)
	require.NoError(t, err)
	assert.Len(t, gs, 2)
}

func TestBoltStoreFullStepResets(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "live.db"), fixtureSatellites)
	require.NoError(t, err)
	defer store.Close()

	steps := fixtureSteps()
	require.NoError(t, store.Write(context.Background(), Step{TimeNs: 0, Records: steps[0].table.Records(), Full: true}))

	// A new run starting from step 3 must not inherit path 0 from the old one.
	require.NoError(t, store.Write(context.Background(), Step{TimeNs: 300, Records: steps[3].table.Records(), Full: true}))
	table, err := store.Table()
	require.NoError(t, err)
	assert.True(t, table.Equal(steps[3].table))
}

func TestBoltStoreNormalizesDrops(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "live.db"), fixtureSatellites)
	require.NoError(t, err)
	defer store.Close()

	withdraw := model.Drop
	withdraw.PathID = 1
	require.NoError(t, store.Write(context.Background(), Step{Records: []model.Record{
		{Src: 2, Dst: 3, ForwardingEntry: model.ForwardingEntry{NextHop: 1, LocalInterface: 1, RemoteInterface: 1, PathID: 1}},
	}, Full: true}))
	require.NoError(t, store.Write(context.Background(), Step{TimeNs: 1, Records: []model.Record{
		{Src: 2, Dst: 3, ForwardingEntry: withdraw},
	}}))

	recs, err := store.Lookup(2, 3)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.Drop, recs[0].ForwardingEntry)
}

func TestBoltStoreRejectsDifferentConstellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.db")
	store, err := OpenBoltStore(path, 4)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = OpenBoltStore(path, 5)
	assert.Error(t, err)

	store, err = OpenBoltStore(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, store.NumSatellites())
	require.NoError(t, store.Close())

	_, err = OpenBoltStore(filepath.Join(t.TempDir(), "fresh.db"), 0)
	assert.Error(t, err)
}
