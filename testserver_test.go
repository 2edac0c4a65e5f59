package resolver

import (
	"net"
	"testing"

	"github.com/miekg/dns"
)

// fakeAuthServer is a minimal authoritative DNS server used to drive
// Classifier tests without touching a real network. It is adapted from the
// teacher's TestServer (server_test.go)/NewLab (lab_test.go): same
// dns.Server-over-a-local-UDP-socket shape, but trimmed of NS/CNAME zone
// delegation, since the classifier never chases delegations — it only ever
// asks one upstream a single A question.
type fakeAuthServer struct {
	t       *testing.T
	records map[string][]net.IP // FQDN -> A records
	rcodes  map[string]int      // FQDN -> rcode override (e.g. SERVFAIL)
	drop    map[string]bool     // FQDN -> silently drop the query (simulates a timeout)
	addr    string
}

// newFakeAuthServer starts a UDP listener on 127.0.0.1 and returns a server
// ready to have records registered on it. The listener and its goroutine
// are torn down automatically when the test finishes.
func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &fakeAuthServer{
		t:       t,
		records: map[string][]net.IP{},
		rcodes:  map[string]int{},
		drop:    map[string]bool{},
		addr:    conn.LocalAddr().String(),
	}

	dnsSrv := &dns.Server{PacketConn: conn, Handler: dns.HandlerFunc(srv.handle)}

	go func() {
		_ = dnsSrv.ActivateAndServe()
	}()

	t.Cleanup(func() {
		_ = dnsSrv.Shutdown()
	})

	return srv
}

func (s *fakeAuthServer) addA(name string, ips ...string) {
	fqdn := dns.CanonicalName(name)
	for _, ip := range ips {
		s.records[fqdn] = append(s.records[fqdn], net.ParseIP(ip))
	}
}

func (s *fakeAuthServer) setRcode(name string, rcode int) {
	s.rcodes[dns.CanonicalName(name)] = rcode
}

func (s *fakeAuthServer) setDrop(name string) {
	s.drop[dns.CanonicalName(name)] = true
}

func (s *fakeAuthServer) handle(w dns.ResponseWriter, req *dns.Msg) {
	if len(req.Question) != 1 {
		return
	}
	q := req.Question[0]

	if s.drop[q.Name] {
		return // no response at all: the client will time out
	}

	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	if rcode, ok := s.rcodes[q.Name]; ok {
		m.Rcode = rcode
		_ = w.WriteMsg(m)
		return
	}

	ips, ok := s.records[q.Name]
	if !ok {
		m.Rcode = dns.RcodeNameError
		_ = w.WriteMsg(m)
		return
	}

	for _, ip := range ips {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   ip,
		})
	}
	_ = w.WriteMsg(m)
}
