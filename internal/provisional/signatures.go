package provisional

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// SignatureBook is the append-only list of supervisor sign-offs per production order
type SignatureBook struct {
	store *Store[datamodel.Signature]
	now   func() time.Time
}

func NewSignatureBook(kv KV, now func() time.Time) *SignatureBook {
	if now == nil {
		now = time.Now
	}
	return &SignatureBook{
		store: NewStore(kv, internal.ProvisionalSignaturesNamespace, Accessors[datamodel.Signature]{
			ID:         func(s datamodel.Signature) string { return s.ID },
			ForeignKey: func(s datamodel.Signature) string { return s.OrderNumber },
		}),
		now: now,
	}
}

// Sign appends a signature for the order. Id and creation time are assigned here.
func (b *SignatureBook) Sign(ctx context.Context, sig datamodel.Signature) (datamodel.Signature, error) {
	sig.OrderNumber = strings.TrimSpace(sig.OrderNumber)
	if err := sig.Validate(); err != nil {
		return datamodel.Signature{}, err
	}
	sig.ID = uuid.New().String()
	sig.CreatedAt = b.now()
	if err := b.store.Upsert(ctx, sig); err != nil {
		return datamodel.Signature{}, err
	}
	zap.S().Infof("Order %s signed by supervisor %d", sig.OrderNumber, sig.SupervisorID)
	return sig, nil
}

// List returns the signatures of order, oldest first
func (b *SignatureBook) List(ctx context.Context, order string) ([]datamodel.Signature, error) {
	if strings.TrimSpace(order) == "" {
		return nil, datamodel.NewValidationError("order number is required")
	}
	sigs, err := b.store.ListByForeignKey(ctx, order)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sigs, func(a, b datamodel.Signature) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sigs, nil
}

// Latest returns the signature of order with the greatest creation time
func (b *SignatureBook) Latest(ctx context.Context, order string) (datamodel.Signature, error) {
	sigs, err := b.List(ctx, order)
	if err != nil {
		return datamodel.Signature{}, err
	}
	if len(sigs) == 0 {
		return datamodel.Signature{}, datamodel.NewNotFoundError("signature of order", order)
	}
	return sigs[len(sigs)-1], nil
}

// IsSigned reports whether order has at least one signature
func (b *SignatureBook) IsSigned(ctx context.Context, order string) (bool, error) {
	sigs, err := b.List(ctx, order)
	if err != nil {
		return false, err
	}
	return len(sigs) > 0, nil
}

// ListAll returns every signature, oldest first
func (b *SignatureBook) ListAll(ctx context.Context) ([]datamodel.Signature, error) {
	sigs, err := b.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sigs, func(a, b datamodel.Signature) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sigs, nil
}

// ExportAll returns the signature namespace as a JSON array, ready for ImportAll
func (b *SignatureBook) ExportAll(ctx context.Context) ([]byte, error) {
	return b.store.ExportAll(ctx)
}

// ImportAll replaces every signature with data. Each record must be a valid signature.
func (b *SignatureBook) ImportAll(ctx context.Context, data []byte) (int, error) {
	var sigs []datamodel.Signature
	if err := json.Unmarshal(data, &sigs); err == nil {
		for i, sig := range sigs {
			if err = sig.Validate(); err != nil {
				return 0, fmt.Errorf("signature %d: %w", i, err)
			}
		}
	}
	n, err := b.store.ImportAll(ctx, data)
	if err != nil {
		return 0, err
	}
	zap.S().Warnf("Signatures replaced by an import of %d records", n)
	return n, nil
}

// Purge removes a signature. Signatures exist to be durable, so this is for administrative corrections only.
func (b *SignatureBook) Purge(ctx context.Context, id string) error {
	sig, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err = b.store.Purge(ctx, id); err != nil {
		return err
	}
	zap.S().Warnf("Purged signature %s of order %s by supervisor %d, the sign-off no longer exists", id, sig.OrderNumber, sig.SupervisorID)
	return nil
}
