package main

import (
	"net"
	"os"

	"github.com/keithlinneman/collage/internal/xerrors"
)

// notifySystemd sends READY=1 when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "systemd notify: dial")
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return xerrors.Wrap(err, "systemd notify: write")
	}
	return xerrors.Wrap(conn.Close(), "systemd notify: close")
}
