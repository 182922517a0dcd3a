package netdb

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerFileRoundTrip(t *testing.T) {
	direct := testPeer(t, "10.0.0.1:9000")
	relayed := testPeer(t, "10.0.0.2:9000")
	relayed.Addresses = []ssu.PeerAddress{{
		IntroKey: [ssu.KeySize]byte{7},
		Introducers: []ssu.IntroducerInfo{{
			Endpoint: netip.MustParseAddrPort("[2001:db8::1]:4567"),
			IntroKey: [ssu.KeySize]byte{9},
			RelayTag: 1234,
		}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WritePeers(&buf, direct, relayed))

	infos, err := ReadPeers(&buf)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, direct.Identity.Hash(), infos[0].Identity.Hash())
	assert.Equal(t, direct.Addresses, infos[0].Addresses)
	assert.Equal(t, relayed.Identity.Hash(), infos[1].Identity.Hash())
	assert.Equal(t, relayed.Addresses, infos[1].Addresses)
	assert.False(t, infos[1].Addresses[0].Direct())
}

func TestReadPeersRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"bad base64":     "peers:\n  - identity: \"!!!\"\n",
		"short identity": "peers:\n  - identity: AAAA\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPeers(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrBadPeerEntry)
		})
	}

	peer := NewPeerEntry(testPeer(t, "10.0.0.1:9000"))
	peer.Addresses[0].IntroKey = "AAAA"
	_, err := peer.Decode()
	assert.ErrorIs(t, err, ErrBadPeerEntry)

	peer.Addresses[0] = AddressEntry{IntroKey: NewPeerEntry(testPeer(t, "10.0.0.1:9000")).Addresses[0].IntroKey}
	_, err = peer.Decode()
	assert.ErrorIs(t, err, ErrBadPeerEntry)
}

func TestReadPeersEmpty(t *testing.T) {
	infos, err := ReadPeers(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestDirectoryLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.yaml")

	d := NewDirectory(nil)
	n, err := d.LoadFile(path)
	require.NoError(t, err)
	assert.Zero(t, n)

	peer := testPeer(t, "10.0.0.5:9000")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WritePeers(f, peer))
	require.NoError(t, f.Close())

	n, err = d.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok := d.Lookup(peer.Identity.Hash())
	assert.True(t, ok)
}
