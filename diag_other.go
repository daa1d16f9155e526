//go:build !linux

package emmer

import (
	"net"

	"github.com/sirupsen/logrus"
)

// logStartupDiagnostics is a no-op on platforms where netfd and the Docker
// kernel-version parser don't apply; see diag_linux.go.
func logStartupDiagnostics(log *logrus.Entry, conn *net.UDPConn) {
	log.WithField("component", "diag").Debug("startup diagnostics unavailable on this platform")
}
