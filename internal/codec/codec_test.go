// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sceasim/sceasim/internal/units"
)

func oneRowTable() Table {
	return Table{
		Row{
			0: LossTable{0.0: Stats{Size: 500, PSNR: 30, SSIM: 0.9}},
			1: LossTable{0.0: Stats{Size: 1000, PSNR: 35, SSIM: 0.95}},
			2: LossTable{0.0: Stats{Size: 2000, PSNR: 40, SSIM: 0.98}},
		},
	}
}

func TestEncodeSelectsLargestWithinBudget(t *testing.T) {
	e := &Encoder{Table: oneRowTable()}
	res := e.Encode(0, 1500)
	require.Equal(t, 1, res.ModelID)
	require.Equal(t, units.Bytes(1000), res.Size)
	require.Equal(t, units.Bytes(500), res.MinSize)
	require.Equal(t, units.Bytes(2000), res.MaxSize)
}

func TestEncodeFallsBackAboveTargetWhenNothingFits(t *testing.T) {
	e := &Encoder{Table: oneRowTable()}
	res := e.Encode(0, 100)
	require.Equal(t, 0, res.ModelID) // closest above: model 0 at 500
}

func TestTableIndexWrapsModuloSize(t *testing.T) {
	table := oneRowTable()
	require.Equal(t, table[0], table.row(0))
	require.Equal(t, table[0], table.row(1)) // wraps, only one row
}

func TestCanDecodeFirstFrameRequiresZeroLoss(t *testing.T) {
	require.True(t, CanDecode(0, 0.0, true))
	require.False(t, CanDecode(0, 0.01, true))
}

func TestCanDecodeLaterFrameNeedsNextFramePacketAndBoundedLoss(t *testing.T) {
	require.True(t, CanDecode(1, 0.9, true))
	require.False(t, CanDecode(1, 0.91, true))
	require.False(t, CanDecode(1, 0.5, false))
}

func TestDecodeRoundsLossToNearestBin(t *testing.T) {
	table := oneRowTable()
	table[0][1][0.3] = Stats{Size: 900, PSNR: 32, SSIM: 0.91}
	d := &Decoder{Table: table}

	psnr, ssim, ok := d.Decode(0, 1, 0.27)
	require.True(t, ok)
	require.Equal(t, 32.0, psnr)
	require.Equal(t, 0.91, ssim)

	_, _, ok = d.Decode(0, 1, 0.6)
	require.False(t, ok)
}
