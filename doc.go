// Package emmer implements the core of a user-extensible TFTP (RFC 1350)
// server: a packet codec, a per-client conversation state machine, a
// concurrent conversation registry, and a background maintainer that
// retransmits, times out, and reaps conversations.
//
// Applications wire in behavior by registering filename-pattern routes with
// a Server; the core drives the protocol and invokes the matching handler.
// A minimal application looks like:
//
//	srv := emmer.New(emmer.DefaultConfig())
//	srv.OnRead(".*", func(host string, port int, filename string) ([]byte, error) {
//		return []byte("example_output"), nil
//	})
//	srv.OnWrite(".*", func(host string, port int, filename string, data []byte) error {
//		return os.WriteFile(filename, data, 0644)
//	})
//	log.Fatal(srv.Run(context.Background()))
package emmer
