// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package csvlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/codec"
	"github.com/sceasim/sceasim/internal/units"
)

const traceCSV = `time_ms,bandwidth_mbps,prop_delay_ms,random_loss_rate,queue_cap_byte,reserved
0,10,50,0.01,100000,x
100,5,0,0,0,
`

func TestReadTraceAndBuildLinkConfig(t *testing.T) {
	rows, err := ReadTrace(strings.NewReader(traceCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	cfg := BuildLinkConfig(rows)
	require.Equal(t, units.FromMilliseconds(100), cfg.Trace.Step)
	require.Equal(t, []units.Rate{units.Rate(10e6), units.Rate(5e6)}, cfg.Trace.Rates)
	require.Equal(t, units.FromMilliseconds(50), cfg.PropDelay)
	require.Equal(t, 0.01, cfg.RandomLoss)
	require.Equal(t, units.Bytes(100000), cfg.QueueCapBytes)
}

func TestBuildLinkConfigEmptyRowsReturnsZeroValue(t *testing.T) {
	cfg := BuildLinkConfig(nil)
	require.Equal(t, units.Duration(0), cfg.Trace.Duration())
}

const codecCSV = `size_bytes,psnr,ssim,loss_rate,frame_id,n_frames,model_id,video_name
500,30,0.9,0,1,2,0,foo
1000,35,0.95,0,2,2,0,foo
`

func TestReadCodecTableAndBuildCodecTable(t *testing.T) {
	rows, err := ReadCodecTable(strings.NewReader(codecCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	table := BuildCodecTable(rows)
	require.Equal(t, 2, table.Size())

	st := table[0][0][0.0]
	require.Equal(t, units.Bytes(500), st.Size)
	require.Equal(t, 30.0, st.PSNR)

	st = table[1][0][0.0]
	require.Equal(t, units.Bytes(1000), st.Size)
	require.Equal(t, 35.0, st.PSNR)
}

func TestBuildCodecTableSkipsFrameIDZero(t *testing.T) {
	rows := []*CodecRow{
		{FrameID: 0, NFrames: 1, ModelID: 0},
		{FrameID: 1, NFrames: 1, ModelID: 0, SizeBytes: 777, LossRate: 0.0},
	}
	table := BuildCodecTable(rows)
	require.Equal(t, codec.Stats{Size: 777}, table[0][0][0.0])
}

func TestWriterAppendFlushRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter[PacketLogRow](&buf)
	w.Append(PacketLogRow{TimestampUs: 1000, Event: "sent", Kind: "data", Seq: 1, SizeByte: 1500})
	w.Append(PacketLogRow{TimestampUs: 2000, Event: "rcvd", Kind: "data", Seq: 1, SizeByte: 1500})

	require.NoError(t, w.Flush())

	var rows []*PacketLogRow
	require.NoError(t, gocsv.Unmarshal(bytes.NewReader(buf.Bytes()), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "sent", rows[0].Event)
	require.Equal(t, int64(2000), rows[1].TimestampUs)
}
