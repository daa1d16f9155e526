//go:build linux

package emmer

import (
	"net"

	"github.com/docker/docker/pkg/parsers/kernel"
	"github.com/higebu/netfd"
	"github.com/sirupsen/logrus"
)

// logStartupDiagnostics records the listening socket's file descriptor and
// the host kernel version at startup. Unlike conniver's own init(), which
// panics when the kernel is too old for the tcpinfo it depends on, these are
// informational only — nothing here gates whether the server can serve
// TFTP, so a failure is logged and swallowed rather than fatal.
func logStartupDiagnostics(log *logrus.Entry, conn *net.UDPConn) {
	entry := log.WithField("component", "diag")

	fd := netfd.GetFdFromConn(conn)
	entry = entry.WithField("fd", fd)

	version, err := kernel.GetKernelVersion()
	if err != nil {
		entry.WithError(err).Warn("could not determine kernel version")
		return
	}
	entry.WithField("kernel_version", version.String()).Info("startup diagnostics")
}
