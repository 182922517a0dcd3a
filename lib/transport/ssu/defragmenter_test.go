package ssu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefragmenter_DuplicateAfterCompletionReArmsAck(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDataDefragmenter()
	f := DataFragment{MessageID: 5, Index: 0, Last: true, Data: []byte("x")}

	out, err := d.AddFragment(f, now)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)

	for range AckRepeat {
		acks := d.Acks(1000)
		assert.Equal(t, []uint32{5}, acks.explicit)
	}
	assert.False(t, d.HasPendingAcks())

	out, err = d.AddFragment(f, now)
	require.NoError(t, err)
	assert.Nil(t, out, "never delivered twice")
	assert.True(t, d.HasPendingAcks())
}

func TestDefragmenter_PartialMessageGetsBitfield(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDataDefragmenter()
	_, err := d.AddFragment(DataFragment{MessageID: 9, Index: 2, Last: true, Data: []byte("c")}, now)
	require.NoError(t, err)
	_, err = d.AddFragment(DataFragment{MessageID: 9, Index: 0, Data: []byte("a")}, now)
	require.NoError(t, err)

	acks := d.Acks(1000)
	require.Len(t, acks.bitfields, 1)
	assert.True(t, acks.bitfields[0].Received.Has(0))
	assert.False(t, acks.bitfields[0].Received.Has(1))
	assert.True(t, acks.bitfields[0].Received.Has(2))
	assert.False(t, d.HasPendingAcks(), "unchanged message is not acked again")

	out, err := d.AddFragment(DataFragment{MessageID: 9, Index: 1, Data: []byte("b")}, now)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

func TestDefragmenter_InvalidFragments(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDataDefragmenter()
	_, err := d.AddFragment(DataFragment{MessageID: 1, Index: 1, Last: true, Data: []byte("b")}, now)
	require.NoError(t, err)
	_, err = d.AddFragment(DataFragment{MessageID: 1, Index: 4, Data: []byte("z")}, now)
	assert.ErrorIs(t, err, ErrInvalidFragment)
	assert.Zero(t, d.OpenCount(), "a broken message is dropped")
	assert.Equal(t, 1, d.Evicted())

	_, err = d.AddFragment(DataFragment{MessageID: 2, Index: 3, Data: []byte("d")}, now)
	require.NoError(t, err)
	_, err = d.AddFragment(DataFragment{MessageID: 2, Index: 1, Last: true, Data: []byte("b")}, now)
	assert.ErrorIs(t, err, ErrInvalidFragment)
}

func TestDefragmenter_EvictsOldestWhenFull(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDataDefragmenter()
	for i := range MaxOpenMessages {
		_, err := d.AddFragment(DataFragment{MessageID: uint32(i + 1), Index: 1, Data: []byte("b")}, now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}
	require.Equal(t, MaxOpenMessages, d.OpenCount())

	_, err := d.AddFragment(DataFragment{MessageID: 1000, Index: 1, Data: []byte("b")}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, MaxOpenMessages, d.OpenCount())
	assert.Equal(t, 1, d.Evicted())

	out, err := d.AddFragment(DataFragment{MessageID: 1, Index: 0, Last: false, Data: []byte("a")}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, out, "the oldest message was evicted")
}

func TestDefragmenter_HousekeepTimesOut(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDataDefragmenter()
	_, err := d.AddFragment(DataFragment{MessageID: 1, Index: 1, Data: []byte("b")}, now)
	require.NoError(t, err)

	assert.Zero(t, d.Housekeep(now.Add(ReassemblyTimeout-time.Second)))
	assert.Equal(t, 1, d.Housekeep(now.Add(ReassemblyTimeout)))
	assert.Zero(t, d.OpenCount())
}
