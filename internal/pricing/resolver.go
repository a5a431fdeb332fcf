package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openwebui-monitor/server/internal/models"
)

// Price policy errors.
var (
	// ErrModelNotFound indicates a price update referenced an unknown model id.
	ErrModelNotFound = errors.New("model price not found")
	// ErrInvalidPrice indicates a negative or non-finite price was supplied.
	ErrInvalidPrice = errors.New("invalid price")
)

// Defaults seed price rows created on first sight of a model.
type Defaults struct {
	InputPrice  float64 // Currency per 1M input tokens.
	OutputPrice float64 // Currency per 1M output tokens.
	PerMsgPrice float64 // Flat per-message price, -1 to disable.
}

// Resolver looks up and maintains per-model price policies.
type Resolver struct {
	db       *gorm.DB
	defaults Defaults
}

// NewResolver constructs a Resolver with the configured default prices.
func NewResolver(db *gorm.DB, defaults Defaults) *Resolver {
	return &Resolver{db: db, defaults: defaults}
}

// Resolve returns the price policy for modelID, creating one seeded with the
// defaults when the model has not been seen before.
//
// The insert uses ON CONFLICT DO UPDATE on the display name so concurrent
// first-use of the same model id produces exactly one row and both callers
// succeed. Prices are never touched on conflict.
func (r *Resolver) Resolve(ctx context.Context, modelID, modelName string) (*models.ModelPrice, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, fmt.Errorf("pricing: empty model id")
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = modelID
	}

	row := models.ModelPrice{
		ID:          modelID,
		Name:        modelName,
		InputPrice:  r.defaults.InputPrice,
		OutputPrice: r.defaults.OutputPrice,
		PerMsgPrice: r.defaults.PerMsgPrice,
	}
	if errUpsert := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{"name": modelName}),
		}).
		Create(&row).Error; errUpsert != nil {
		return nil, fmt.Errorf("pricing: upsert model price: %w", errUpsert)
	}

	// The upsert does not report back existing prices, so read the row to
	// return the policy actually in effect.
	var policy models.ModelPrice
	if errFind := r.db.WithContext(ctx).
		Where("id = ?", modelID).
		Take(&policy).Error; errFind != nil {
		return nil, fmt.Errorf("pricing: load model price: %w", errFind)
	}
	return &policy, nil
}

// ResolveID returns the price policy for modelID, creating a default row
// seeded with the id as display name when the model has not been seen before.
//
// Unlike Resolve, an existing row is left completely untouched: billing
// events only know the raw model id and must not overwrite a display name
// the catalog mirror has already stored.
func (r *Resolver) ResolveID(ctx context.Context, modelID string) (*models.ModelPrice, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, fmt.Errorf("pricing: empty model id")
	}

	row := models.ModelPrice{
		ID:          modelID,
		Name:        modelID,
		InputPrice:  r.defaults.InputPrice,
		OutputPrice: r.defaults.OutputPrice,
		PerMsgPrice: r.defaults.PerMsgPrice,
	}
	if errUpsert := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&row).Error; errUpsert != nil {
		return nil, fmt.Errorf("pricing: upsert model price: %w", errUpsert)
	}

	var policy models.ModelPrice
	if errFind := r.db.WithContext(ctx).
		Where("id = ?", modelID).
		Take(&policy).Error; errFind != nil {
		return nil, fmt.Errorf("pricing: load model price: %w", errFind)
	}
	return &policy, nil
}

// Update validates and applies new prices for an existing model.
//
// It never creates a row; updating an unseen model id returns
// ErrModelNotFound. Invalid prices are rejected before any store mutation.
func (r *Resolver) Update(ctx context.Context, modelID string, inputPrice, outputPrice, perMsgPrice float64) (*models.ModelPrice, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrInvalidPrice)
	}
	if errValidate := ValidatePrices(inputPrice, outputPrice, perMsgPrice); errValidate != nil {
		return nil, errValidate
	}

	res := r.db.WithContext(ctx).
		Model(&models.ModelPrice{}).
		Where("id = ?", modelID).
		Updates(map[string]any{
			"input_price":   inputPrice,
			"output_price":  outputPrice,
			"per_msg_price": perMsgPrice,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("pricing: update model price: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrModelNotFound
	}

	var policy models.ModelPrice
	if errFind := r.db.WithContext(ctx).
		Where("id = ?", modelID).
		Take(&policy).Error; errFind != nil {
		return nil, fmt.Errorf("pricing: load model price: %w", errFind)
	}
	return &policy, nil
}

// SetMeta stores the upstream catalog metadata snapshot for a model. Price
// fields are untouched.
func (r *Resolver) SetMeta(ctx context.Context, modelID string, meta datatypes.JSON) error {
	if len(meta) == 0 {
		return nil
	}
	if errUpdate := r.db.WithContext(ctx).
		Model(&models.ModelPrice{}).
		Where("id = ?", modelID).
		Update("meta", meta).Error; errUpdate != nil {
		return fmt.Errorf("pricing: set model meta: %w", errUpdate)
	}
	return nil
}

// ValidatePrices checks a price triple against the policy invariants:
// token prices must be finite and non-negative; the per-message price must be
// finite and either non-negative or exactly the disabled sentinel.
func ValidatePrices(inputPrice, outputPrice, perMsgPrice float64) error {
	if !isFinite(inputPrice) || inputPrice < 0 {
		return fmt.Errorf("%w: input price %v", ErrInvalidPrice, inputPrice)
	}
	if !isFinite(outputPrice) || outputPrice < 0 {
		return fmt.Errorf("%w: output price %v", ErrInvalidPrice, outputPrice)
	}
	if !isFinite(perMsgPrice) {
		return fmt.Errorf("%w: per-message price %v", ErrInvalidPrice, perMsgPrice)
	}
	if perMsgPrice < 0 && perMsgPrice != models.PerMessageDisabled {
		return fmt.Errorf("%w: per-message price %v", ErrInvalidPrice, perMsgPrice)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
