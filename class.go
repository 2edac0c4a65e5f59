package resolver

// Class is the closed taxonomy of outcomes a single DNS A-record lookup can
// be mapped to. The ordinal is stable and is never persisted; only the name
// is written to disk (see cache/snapshot.go).
type Class int

const (
	// Resolvable means at least one A record was returned.
	Resolvable Class = iota
	// Unresolvable means the name server answered with NXDOMAIN or an empty
	// answer section. This is a terminal, confirmed-dead verdict.
	Unresolvable
	// None is the seed state: a domain that has not yet been classified.
	None
	// NameServerError means no configured upstream name server produced a
	// usable response.
	NameServerError
	// Timeout means the lookup exceeded its lifetime budget after retries.
	Timeout
	// DNSError means the name server returned a protocol-level error other
	// than NXDOMAIN (e.g. SERVFAIL, a malformed response).
	DNSError
	// Err is any other exception encountered while attempting the lookup.
	Err
)

// numClasses is the fixed arity of the ResolutionCache's set of classes.
const numClasses = 7

// allClasses lists every Class in ordinal order.
var allClasses = [numClasses]Class{Resolvable, Unresolvable, None, NameServerError, Timeout, DNSError, Err}

// provisionalClasses is every Class except Resolvable and Unresolvable: the
// set of classes refresh_cache re-queries.
var provisionalClasses = [numClasses - 2]Class{None, NameServerError, Timeout, DNSError, Err}

// String returns the canonical on-disk name of c, matching the class names
// in spec.md's §3 table. This is also the Stringer used by slog attrs.
func (c Class) String() string {
	switch c {
	case Resolvable:
		return "resolvable"
	case Unresolvable:
		return "unresolvable"
	case None:
		return "none"
	case NameServerError:
		return "nameServerError"
	case Timeout:
		return "timeout"
	case DNSError:
		return "dnsError"
	case Err:
		return "error"
	default:
		return "unknown"
	}
}

// classByName maps the canonical on-disk name back to a Class. It is used by
// the snapshot loader to reject anything other than the seven known names.
var classByName = map[string]Class{
	"resolvable":      Resolvable,
	"unresolvable":    Unresolvable,
	"none":            None,
	"nameServerError": NameServerError,
	"timeout":         Timeout,
	"dnsError":        DNSError,
	"error":           Err,
}

// ParseClass resolves a canonical class name to its Class, reporting ok=false
// for any other key (including an integer-keyed input coerced to a string).
func ParseClass(name string) (c Class, ok bool) {
	c, ok = classByName[name]
	return c, ok
}
