package resolver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/miekg/dns"
)

// Classifier performs a single DNS A-record lookup against a configured
// upstream and maps the outcome to a Class. classify never fails: every
// path returns a Class, per spec.md §4.1's contract.
//
// A Classifier holds no mutable state across calls other than the shared
// upstreamSet, which is safe for concurrent use, matching spec.md §4.1's
// concurrency note.
type Classifier struct {
	upstream *upstreamSet
	retries  int
	lifetime time.Duration
	logger   *slog.Logger

	// dial, when set, overrides how a single exchange against one
	// nameserver address is performed. Tests use this to point the
	// classifier at an embedded authoritative server without touching real
	// network nameservers.
	dial func(ctx context.Context, domain, addr string, timeout time.Duration) (*dns.Msg, error)
}

// NewClassifier builds a Classifier from cfg. cfg.Nameservers defaults to
// DefaultNameservers when empty.
func NewClassifier(cfg Config) (*Classifier, error) {
	addrs := cfg.Nameservers
	if len(addrs) == 0 {
		addrs = DefaultNameservers
	}

	up, err := newUpstreamSet(addrs, cfg.Rotate)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		upstream: up,
		retries:  cfg.Retries,
		lifetime: cfg.Lifetime,
		logger:   cfg.logger(),
	}, nil
}

// Classify resolves domain and returns the Class its A-record lookup falls
// into, along with domain unchanged (so that callers can treat the return
// value as a (Class, Domain) pair per spec.md §3's BatchResult shape).
func (c *Classifier) Classify(ctx context.Context, domain string) (Class, string) {
	lifetime := c.lifetime
	var delay time.Duration

	for attempt := 0; ; attempt++ {
		class, retryable := c.attempt(ctx, domain, lifetime)
		if !retryable {
			return class, domain
		}

		if attempt >= c.retries {
			c.logger.Debug("retries exhausted", "domain", domain)
			return Timeout, domain
		}

		delay += time.Second
		select {
		case <-ctx.Done():
			return Timeout, domain
		case <-time.After(delay):
		}
		lifetime = c.lifetime * time.Duration(attempt+2)
	}
}

// attempt runs one A-record lookup attempt with the given lifetime budget.
// retryable is true only for the lifetime-timeout case, which is the only
// outcome spec.md §4.1 allows a retry for.
func (c *Classifier) attempt(ctx context.Context, domain string, lifetime time.Duration) (class Class, retryable bool) {
	servers := c.upstream.ordered()
	if len(servers) == 0 {
		return NameServerError, false
	}

	var lastErr error
	var sawTimeout, sawCancel bool
	var protoErr *dns.Error

	for _, addr := range servers {
		attemptCtx, cancel := context.WithTimeout(ctx, lifetime)
		resp, err := c.exchange(attemptCtx, domain, addr, lifetime)
		cancel()

		if err != nil {
			switch {
			case errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled:
				// The caller's context was canceled out-of-band (shutdown),
				// not a lifetime budget expiring. That is not part of the
				// DNS outcome taxonomy, so it falls into the generic bucket.
				sawCancel = true
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
				// The lifetime budget expired, either as the context deadline
				// or as the socket read/write deadline derived from it.
				sawTimeout = true
			case errors.As(err, &protoErr):
				// A reply arrived but could not be parsed as a DNS message.
				return DNSError, false
			default:
				lastErr = err
			}
			continue
		}

		return classifyResponse(resp), false
	}

	switch {
	case sawTimeout:
		return Timeout, true
	case sawCancel:
		return Err, false
	case lastErr != nil:
		// Every configured nameserver failed at the transport level
		// (connection refused, unreachable, etc.) without any of them
		// producing so much as an error response: no working nameserver.
		c.logger.Debug("no working nameserver", "domain", domain, "error", lastErr)
		return NameServerError, false
	default:
		return NameServerError, false
	}
}

func (c *Classifier) exchange(ctx context.Context, domain, addr string, timeout time.Duration) (*dns.Msg, error) {
	if c.dial != nil {
		return c.dial(ctx, domain, addr, timeout)
	}

	client := &dns.Client{Timeout: timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.CanonicalName(domain), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := client.ExchangeContext(ctx, msg, addr)
	return resp, err
}

// classifyResponse maps a successfully-received *dns.Msg to its Class. It
// never returns Timeout or NameServerError: those are decided by the caller
// based on whether a response was received at all.
func classifyResponse(resp *dns.Msg) Class {
	if resp == nil {
		return Unresolvable
	}

	switch resp.Rcode {
	case dns.RcodeNameError:
		return Unresolvable
	case dns.RcodeSuccess:
		if countA(resp) > 0 {
			return Resolvable
		}
		return Unresolvable
	case dns.RcodeServerFailure, dns.RcodeRefused, dns.RcodeFormatError, dns.RcodeNotImplemented:
		return DNSError
	default:
		return DNSError
	}
}

func countA(resp *dns.Msg) int {
	n := 0
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.A); ok {
			n++
		}
	}
	return n
}
