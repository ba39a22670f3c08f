package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// ProductClient is a read-through cache over the product catalog. Cache
// failures degrade to direct database reads.
type ProductClient struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewProductClient creates a new product client
func NewProductClient(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *ProductClient {
	return &ProductClient{
		store:    store,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// GetCheckedProduct returns a product that exists, is listed and has stock.
// Missing or unlisted products fail with PRODUCT_DOES_NOT_EXIST, exhausted
// stock with PRODUCT_OUT_OF_STOCK.
func (pc *ProductClient) GetCheckedProduct(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductClient.GetCheckedProduct")
	defer span.End()

	product, err := pc.lookup(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !product.Listed {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrProductDoesNotExist)
	}
	if product.Stock <= 0 {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrProductOutOfStock)
	}

	return product, nil
}

func (pc *ProductClient) lookup(ctx context.Context, productID int64) (*models.Product, error) {
	cached, err := pc.redis.GetProduct(ctx, productID)
	if err != nil {
		pc.logger.Warn("Product cache read failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	if cached != nil {
		util.ProductCacheHitsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.ProductCacheHitsTotal.WithLabelValues("miss").Inc()

	product, err := pc.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := pc.redis.SetProduct(ctx, product, pc.cacheTTL); err != nil {
		pc.logger.Warn("Product cache write failed",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}

	return product, nil
}
