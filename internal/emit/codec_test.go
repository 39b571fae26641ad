package emit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-router/model"
)

func TestFormatRecord(t *testing.T) {
	r := model.Record{Src: 4, Dst: 5, ForwardingEntry: model.ForwardingEntry{NextHop: 0, LocalInterface: 1, RemoteInterface: 6, PathID: 1}}
	assert.Equal(t, "4,5,0,1,6", FormatRecord(r, false))
	assert.Equal(t, "4,5,0,1,6,1", FormatRecord(r, true))

	drop := model.Record{Src: 1, Dst: 5, ForwardingEntry: model.Drop}
	assert.Equal(t, "1,5,-1,-1,-1", FormatRecord(drop, false))
}

func TestParseRecord(t *testing.T) {
	r, err := ParseRecord("4,5,0,1,6,2\n")
	require.NoError(t, err)
	assert.Equal(t, model.Record{Src: 4, Dst: 5, ForwardingEntry: model.ForwardingEntry{NextHop: 0, LocalInterface: 1, RemoteInterface: 6, PathID: 2}}, r)

	r, err = ParseRecord("1, 5, -1, -1, -1")
	require.NoError(t, err)
	assert.True(t, r.IsDrop())
	assert.Zero(t, r.PathID)

	for _, bad := range []string{"", "1,2,3,4", "1,2,3,4,5,6,7", "1,2,x,4,5"} {
		_, err := ParseRecord(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestBandwidthRoundTrip(t *testing.T) {
	in := []model.BandwidthRecord{
		{InterfaceRef: model.InterfaceRef{Node: 0, Interface: 4}, Bandwidth: 45},
		{InterfaceRef: model.InterfaceRef{Node: 2, Interface: 0}, Bandwidth: 0.5},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteBandwidth(&buf, in))
	assert.Equal(t, "0,4,45.000000\n2,0,0.500000\n", buf.String())

	out, err := ReadBandwidth(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ReadBandwidth(strings.NewReader("0,4,45\n\n1,x,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadRecordsSkipsBlankLines(t *testing.T) {
	recs, err := ReadRecords(strings.NewReader("0,3,3,1,0\n\n2,3,1,1,1,1\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[1].PathID)
}
