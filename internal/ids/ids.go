package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)

	// idempotencyNamespace scopes payment idempotency keys to this client.
	idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://rentdesk.org/payments/initialize"))
)

// RequestID returns a lexicographically sortable identifier attached to every
// outgoing request as X-Request-ID.
func RequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IdempotencyKey derives a stable key for an operation on a resource, so that
// repeated submissions for the same booking map to the same server-side record.
func IdempotencyKey(scope, id string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(scope+":"+id)).String()
}
