package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultUnlockRate refills one unlock attempt every two seconds.
	defaultUnlockRate  = rate.Limit(0.5)
	defaultUnlockBurst = 5

	// maxFailures is the number of consecutive denials before lockout.
	maxFailures = 5
	baseLockout = time.Minute
	maxLockout  = 15 * time.Minute
	// clientExpiry is how long an idle client record is kept.
	clientExpiry  = time.Hour
	sweepInterval = 5 * time.Minute
)

// unlockLimiter throttles unlock attempts per client address. A token bucket
// caps the attempt rate; consecutive denials add an exponential lockout.
type unlockLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientRecord
	lastSweep time.Time
	now       func() time.Time
}

type clientRecord struct {
	bucket      *rate.Limiter
	failures    int
	lastSeen    time.Time
	lockedUntil time.Time
}

func newUnlockLimiter(limit rate.Limit, burst int) *unlockLimiter {
	if burst < 1 {
		burst = 1
	}
	return &unlockLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientRecord),
		now:     time.Now,
	}
}

func (l *unlockLimiter) record(ip string, now time.Time) *clientRecord {
	rec, ok := l.clients[ip]
	if !ok {
		rec = &clientRecord{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = rec
	}
	rec.lastSeen = now
	return rec
}

// allow takes one attempt for ip. When refused it returns how long the
// client should wait.
func (l *unlockLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > sweepInterval {
		l.sweepLocked(now)
	}
	rec := l.record(ip, now)
	if now.Before(rec.lockedUntil) {
		return false, rec.lockedUntil.Sub(now)
	}
	res := rec.bucket.ReserveN(now, 1)
	if !res.OK() {
		return false, maxLockout
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// recordFailure counts a denial and applies backoff once maxFailures is
// reached.
func (l *unlockLimiter) recordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.record(ip, now)
	rec.failures++
	if rec.failures < maxFailures {
		return
	}
	lockout := baseLockout
	for i := maxFailures; i < rec.failures && lockout < maxLockout; i++ {
		lockout *= 2
	}
	rec.lockedUntil = now.Add(min(lockout, maxLockout))
}

// recordSuccess clears the denial count for ip.
func (l *unlockLimiter) recordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.clients[ip]; ok {
		rec.failures = 0
		rec.lockedUntil = time.Time{}
	}
}

func (l *unlockLimiter) sweepLocked(now time.Time) {
	l.lastSweep = now
	for ip, rec := range l.clients {
		if now.Sub(rec.lastSeen) > clientExpiry && !now.Before(rec.lockedUntil) {
			delete(l.clients, ip)
		}
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many unlock attempts; try again later")
}

func retryAfterString(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIP trusts no proxy headers.
func extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, nil)
}

// extractClientIPWithProxies returns the client address. Forwarding headers
// (X-Forwarded-For, then Forwarded, then X-Real-IP) are read only when the
// direct peer lies inside one of trustedProxies.
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)
	if !peerTrusted(remoteIP, trustedProxies) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for part := range strings.SplitSeq(xff, ",") {
			if ip, ok := parseIPCandidate(part); ok {
				return ip
			}
		}
	}
	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		for elem := range strings.SplitSeq(fwd, ",") {
			for param := range strings.SplitSeq(elem, ";") {
				key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(key, "for") {
					continue
				}
				if ip, ok := parseIPCandidate(value); ok {
					return ip
				}
			}
		}
	}
	if ip, ok := parseIPCandidate(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return remoteIP
}

func peerTrusted(remoteIP string, trusted []netip.Prefix) bool {
	if remoteIP == "" || len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(remoteIP)
	if err != nil {
		return false
	}
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
