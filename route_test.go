package emmer

import "testing"

func TestResolveReadPrefixSemantics(t *testing.T) {
	rt := NewRouteTable()
	rt.OnRead(`data/.*`, func(host string, port int, filename string) ([]byte, error) {
		return []byte("data"), nil
	})
	rt.OnRead(`healthcheck`, func(host string, port int, filename string) ([]byte, error) {
		return []byte("OK"), nil
	})

	if h := rt.ResolveRead("data/foo.bin"); h == nil {
		t.Fatal("expected a match for data/foo.bin")
	}
	if h := rt.ResolveRead("healthcheck-extra"); h == nil {
		t.Fatal("expected re.match-style unanchored-end match for healthcheck-extra")
	}
	if h := rt.ResolveRead("nope"); h != nil {
		t.Fatal("expected no match for nope")
	}
}

func TestResolveReadFirstMatchWins(t *testing.T) {
	rt := NewRouteTable()
	var which string
	rt.OnRead(`.*`, func(host string, port int, filename string) ([]byte, error) {
		which = "first"
		return nil, nil
	})
	rt.OnRead(`specific`, func(host string, port int, filename string) ([]byte, error) {
		which = "second"
		return nil, nil
	})

	h := rt.ResolveRead("specific")
	if h == nil {
		t.Fatal("expected a match")
	}
	h("127.0.0.1", 0, "specific")
	if which != "first" {
		t.Fatalf("expected the first registered rule to win, got %q", which)
	}
}

func TestResolveWriteNoRoutes(t *testing.T) {
	rt := NewRouteTable()
	if h := rt.ResolveWrite("anything"); h != nil {
		t.Fatal("expected nil handler when no write routes are registered")
	}
}
