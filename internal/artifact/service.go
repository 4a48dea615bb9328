package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/weftline/orderdesk/internal/domain/order"
)

// Cache stores rendered artifact bytes. Get returns (nil, nil) on a miss.
// Since artifacts are deterministic per order, a stale entry cannot exist;
// the TTL only bounds memory.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// cacheTTL bounds how long rendered artifacts stay cached.
const cacheTTL = 24 * time.Hour

// Service renders tracking artifacts on demand, reading orders from the
// repository and caching results by tracking code. A nil cache disables
// caching; cache failures degrade to a fresh render, never to an error.
type Service struct {
	orders  order.Repository
	qr      *QRRenderer
	sticker *StickerRenderer
	cache   Cache
}

// NewService creates an artifact Service. cache may be nil.
func NewService(orders order.Repository, cache Cache) *Service {
	return &Service{
		orders:  orders,
		qr:      NewQRRenderer(defaultQRSize),
		sticker: NewStickerRenderer(),
		cache:   cache,
	}
}

// TrackingQR returns the PNG QR image for the given tracking code.
func (s *Service) TrackingQR(ctx context.Context, trackingCode string) ([]byte, error) {
	o, err := s.orders.GetByTrackingCode(ctx, trackingCode)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, s.qr, o)
}

// Sticker returns the delivery sticker PDF for the order with the given ID,
// along with the download filename derived from the tracking code.
func (s *Service) Sticker(ctx context.Context, orderID string) (data []byte, filename string, err error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, "", err
	}

	data, err = s.render(ctx, s.sticker, o)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("delivery-sticker-%s.pdf", o.TrackingCode), nil
}

func (s *Service) render(ctx context.Context, r Renderer, o *order.Order) ([]byte, error) {
	key := cacheKey(r.Kind(), o.TrackingCode)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
			return data, nil
		}
	}

	data, err := r.Render(o)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s for %s", r.Kind(), o.TrackingCode)
	}

	if s.cache != nil {
		// Best effort: a failed cache write only costs the next render.
		_ = s.cache.Set(ctx, key, data, cacheTTL)
	}
	return data, nil
}

func cacheKey(kind Kind, trackingCode string) string {
	return fmt.Sprintf("artifact:%s:%s", kind, trackingCode)
}
