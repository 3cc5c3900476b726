package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/renmiamu/dvnet/state"
)

// UdpLink is the datagram socket of a node. It resolves peer identities to
// addresses through the static address book.
type UdpLink struct {
	conn  *net.UDPConn
	peers map[state.NodeId]netip.AddrPort
	log   *slog.Logger
}

func ListenUdp(env *state.Env) (*UdpLink, error) {
	bind, ok := env.GetAddr(env.Id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, env.Id)
	}
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bind))
	if err != nil {
		return nil, err
	}
	env.Log.Info("listening", "addr", conn.LocalAddr().String())
	return &UdpLink{
		conn:  conn,
		peers: env.Peers,
		log:   env.Log.With("module", "udp"),
	}, nil
}

func (l *UdpLink) LocalAddr() netip.AddrPort {
	return l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (l *UdpLink) Send(to state.NodeId, pkt []byte) error {
	addr, ok := l.peers[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	_, err := l.conn.WriteToUDPAddrPort(pkt, addr)
	return err
}

// Serve reads datagrams until ctx is done, handing each one to handler on its
// own goroutine.
func (l *UdpLink) Serve(ctx context.Context, handler func([]byte)) error {
	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer stop()
	buf := make([]byte, state.MaxDatagramSize)
	for {
		n, from, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Warn("read failed", "err", err)
			continue
		}
		l.log.Debug("datagram received", "from", from, "bytes", n)
		go handler(bytes.Clone(buf[:n]))
	}
}

func (l *UdpLink) Close() error {
	return l.conn.Close()
}
