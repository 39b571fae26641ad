package emit

import "github.com/signalsfoundry/constellation-router/model"

const fixtureSatellites = 2

type fixtureStep struct {
	timeNs int64
	table  *model.Table
	bw     model.BandwidthAssignment
}

// fixtureSteps is a multi-path run over two satellites (0,1) and two ground
// stations (2,3): both paths, one withdrawn, unreachable, back on path 1.
func fixtureSteps() []fixtureStep {
	t0 := model.NewTable()
	t0.Set(model.Key{Node: 0, Dst: 3}, model.ForwardingEntry{NextHop: 3, LocalInterface: 1, RemoteInterface: 0})
	t0.Set(model.Key{Node: 1, Dst: 3}, model.ForwardingEntry{NextHop: 0, LocalInterface: 0, RemoteInterface: 0})
	t0.Set(model.Key{Node: 2, Dst: 3, Path: 0}, model.ForwardingEntry{NextHop: 0, LocalInterface: 0, RemoteInterface: 1})
	t0.Set(model.Key{Node: 2, Dst: 3, Path: 1}, model.ForwardingEntry{NextHop: 1, LocalInterface: 1, RemoteInterface: 1, PathID: 1})

	t1 := withoutKey(t0, model.Key{Node: 2, Dst: 3, Path: 1})

	t2 := model.NewTable()
	t2.Set(model.Key{Node: 0, Dst: 3}, model.Drop)
	t2.Set(model.Key{Node: 1, Dst: 3}, model.Drop)
	t2.Set(model.Key{Node: 2, Dst: 3}, model.Drop)

	t3 := model.NewTable()
	t3.Set(model.Key{Node: 0, Dst: 3}, model.ForwardingEntry{NextHop: 1, LocalInterface: 0, RemoteInterface: 0})
	t3.Set(model.Key{Node: 1, Dst: 3}, model.ForwardingEntry{NextHop: 3, LocalInterface: 1, RemoteInterface: 1, PathID: 1})
	t3.Set(model.Key{Node: 2, Dst: 3, Path: 1}, model.ForwardingEntry{NextHop: 1, LocalInterface: 1, RemoteInterface: 1, PathID: 1})

	bw := func(used float64) model.BandwidthAssignment {
		return model.BandwidthAssignment{
			{Node: 0, Interface: 1}: used,
			{Node: 1, Interface: 1}: 10 - used,
			{Node: 2, Interface: 0}: 5,
			{Node: 2, Interface: 1}: 5,
			{Node: 3, Interface: 0}: 10,
		}
	}
	return []fixtureStep{
		{timeNs: 0, table: t0, bw: bw(10)},
		{timeNs: 100, table: t1, bw: bw(10)},
		{timeNs: 200, table: t2, bw: bw(0)},
		{timeNs: 300, table: t3, bw: bw(0)},
	}
}

func withoutKey(t *model.Table, drop model.Key) *model.Table {
	out := model.NewTable()
	for _, k := range t.Keys() {
		if k == drop {
			continue
		}
		e, _ := t.Get(k)
		out.Set(k, e)
	}
	return out
}
