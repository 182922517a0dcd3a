package netdb

import (
	"io"
	"net/netip"
	"os"

	"github.com/go-i2p/common/base64"
	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// PeerFile is the YAML document listing known peers.
type PeerFile struct {
	Peers []PeerEntry `yaml:"peers"`
}

// PeerEntry is one peer in a PeerFile. Binary fields are I2P base64.
type PeerEntry struct {
	Identity  string         `yaml:"identity"`
	Addresses []AddressEntry `yaml:"addresses"`
}

type AddressEntry struct {
	Host        string            `yaml:"host,omitempty"`
	IntroKey    string            `yaml:"intro_key"`
	Introducers []IntroducerEntry `yaml:"introducers,omitempty"`
}

type IntroducerEntry struct {
	Host     string `yaml:"host"`
	IntroKey string `yaml:"intro_key"`
	Tag      uint32 `yaml:"tag"`
}

// NewPeerEntry encodes info for a peer file.
func NewPeerEntry(info ssu.PeerInfo) PeerEntry {
	e := PeerEntry{Identity: base64.EncodeToString(info.Identity.Bytes())}
	for _, a := range info.Addresses {
		ae := AddressEntry{IntroKey: base64.EncodeToString(a.IntroKey[:])}
		if a.Endpoint.IsValid() {
			ae.Host = a.Endpoint.String()
		}
		for _, in := range a.Introducers {
			ae.Introducers = append(ae.Introducers, IntroducerEntry{
				Host:     in.Endpoint.String(),
				IntroKey: base64.EncodeToString(in.IntroKey[:]),
				Tag:      in.RelayTag,
			})
		}
		e.Addresses = append(e.Addresses, ae)
	}
	return e
}

// Decode parses the entry back into a PeerInfo.
func (e PeerEntry) Decode() (ssu.PeerInfo, error) {
	raw, err := base64.DecodeString(e.Identity)
	if err != nil {
		return ssu.PeerInfo{}, oops.Wrapf(ErrBadPeerEntry, "identity: %v", err)
	}
	ident, _, err := router_identity.ReadRouterIdentity(raw)
	if err != nil {
		return ssu.PeerInfo{}, oops.Wrapf(ErrBadPeerEntry, "identity: %v", err)
	}
	info := ssu.PeerInfo{Identity: ident}
	for i, ae := range e.Addresses {
		addr, err := ae.decode()
		if err != nil {
			return ssu.PeerInfo{}, oops.Wrapf(err, "address %d", i)
		}
		info.Addresses = append(info.Addresses, addr)
	}
	return info, nil
}

func (ae AddressEntry) decode() (ssu.PeerAddress, error) {
	var addr ssu.PeerAddress
	if ae.Host != "" {
		ep, err := netip.ParseAddrPort(ae.Host)
		if err != nil {
			return addr, oops.Wrapf(ErrBadPeerEntry, "host %q: %v", ae.Host, err)
		}
		addr.Endpoint = ep
	}
	key, err := decodeKey(ae.IntroKey)
	if err != nil {
		return addr, err
	}
	addr.IntroKey = key
	for _, ie := range ae.Introducers {
		ep, err := netip.ParseAddrPort(ie.Host)
		if err != nil {
			return addr, oops.Wrapf(ErrBadPeerEntry, "introducer %q: %v", ie.Host, err)
		}
		ikey, err := decodeKey(ie.IntroKey)
		if err != nil {
			return addr, err
		}
		addr.Introducers = append(addr.Introducers, ssu.IntroducerInfo{Endpoint: ep, IntroKey: ikey, RelayTag: ie.Tag})
	}
	if !addr.Endpoint.IsValid() && len(addr.Introducers) == 0 {
		return addr, oops.Wrapf(ErrBadPeerEntry, "neither host nor introducers")
	}
	return addr, nil
}

func decodeKey(s string) (key [ssu.KeySize]byte, err error) {
	raw, err := base64.DecodeString(s)
	if err != nil {
		return key, oops.Wrapf(ErrBadPeerEntry, "intro key: %v", err)
	}
	if len(raw) != ssu.KeySize {
		return key, oops.Wrapf(ErrBadPeerEntry, "intro key is %d bytes, want %d", len(raw), ssu.KeySize)
	}
	copy(key[:], raw)
	return key, nil
}

// ReadPeers decodes a peer file.
func ReadPeers(r io.Reader) ([]ssu.PeerInfo, error) {
	var doc PeerFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, oops.Wrapf(err, "decoding peer file")
	}
	infos := make([]ssu.PeerInfo, 0, len(doc.Peers))
	for i, e := range doc.Peers {
		info, err := e.Decode()
		if err != nil {
			return nil, oops.Wrapf(err, "peer %d", i)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// WritePeers encodes infos as a peer file.
func WritePeers(w io.Writer, infos ...ssu.PeerInfo) error {
	doc := PeerFile{Peers: make([]PeerEntry, 0, len(infos))}
	for _, info := range infos {
		doc.Peers = append(doc.Peers, NewPeerEntry(info))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return oops.Wrapf(err, "encoding peer file")
	}
	return enc.Close()
}

// LoadFile adds every peer in the file at path and returns how many were
// loaded. A missing file loads nothing.
func (d *Directory) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Debug("no peer file")
		return 0, nil
	}
	if err != nil {
		return 0, oops.Wrapf(err, "opening peer file")
	}
	defer f.Close()

	infos, err := ReadPeers(f)
	if err != nil {
		return 0, oops.Wrapf(err, "reading %s", path)
	}
	for _, info := range infos {
		if err := d.Add(info); err != nil {
			return 0, err
		}
	}
	log.WithFields(logger.Fields{
		"at":    "(Directory) LoadFile",
		"path":  path,
		"peers": len(infos),
	}).Info("peer file loaded")
	return len(infos), nil
}
