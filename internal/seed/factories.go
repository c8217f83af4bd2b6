package seed

import (
	"fmt"
	"math/rand"
	"time"

	"giftdesk/internal/models"
	"giftdesk/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Factory builds realistic approval requests without persisting them.
type Factory struct {
	faker *gofakeit.Faker
	rng   *rand.Rand
	now   func() time.Time
}

// NewFactory returns a factory. A zero seed picks a random one.
func NewFactory(seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		faker: gofakeit.New(seed),
		rng:   rand.New(rand.NewSource(seed)),
		now:   time.Now,
	}
}

// Pending builds a pending request created within the last maxAge.
func (f *Factory) Pending(kind models.RequestKind, maxAge time.Duration) *models.Request {
	req := &models.Request{
		Kind:             kind,
		MemberIdentifier: f.identifier(),
		Status:           models.RequestStatusPending,
		OwnerToken:       uuid.NewString(),
		ClientIP:         f.faker.IPv4Address(),
		CreatedAt:        f.now().Add(-f.jitter(maxAge)),
	}
	if kind == models.RequestKindVerification {
		req.Code = f.faker.DigitN(6)
		req.DeviceLabel = fmt.Sprintf("%s on %s",
			f.faker.RandomString([]string{"Chrome", "Safari", "Firefox", "Edge"}),
			f.faker.RandomString([]string{"iPhone", "Android", "Windows", "macOS"}))
	}
	return req
}

// Resolved builds a request that reached status. Admin decisions record
// resolvedBy; cancellations never do.
func (f *Factory) Resolved(kind models.RequestKind, status models.RequestStatus, resolvedBy uint, maxAge time.Duration) *models.Request {
	req := f.Pending(kind, maxAge)
	req.Status = status
	resolvedAt := req.CreatedAt.Add(time.Duration(1+f.rng.Intn(300)) * time.Second)
	req.ResolvedAt = &resolvedAt
	if status != models.RequestStatusCancelled {
		by := resolvedBy
		req.ResolvedBy = &by
	}
	return req
}

// Kind picks a request kind, weighted toward logins.
func (f *Factory) Kind() models.RequestKind {
	if f.rng.Intn(3) == 0 {
		return models.RequestKindVerification
	}
	return models.RequestKindLogin
}

// TerminalStatus picks a decided status.
func (f *Factory) TerminalStatus() models.RequestStatus {
	switch f.rng.Intn(5) {
	case 0:
		return models.RequestStatusCancelled
	case 1, 2:
		return models.RequestStatusDenied
	default:
		return models.RequestStatusApproved
	}
}

func (f *Factory) identifier() string {
	if f.rng.Intn(2) == 0 {
		return validation.NormalizeIdentifier(f.faker.Email())
	}
	return validation.NormalizeIdentifier(f.faker.Username())
}

func (f *Factory) jitter(maxAge time.Duration) time.Duration {
	if maxAge <= 0 {
		return 0
	}
	return time.Duration(f.rng.Int63n(int64(maxAge)))
}
