package extractor

import (
	"context"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

// Extractor turns unstructured content into product records.
// Implementations never fail loudly: any error yields an empty slice.
type Extractor interface {
	Extract(ctx context.Context, chunk models.RawChunk) []models.ProductRecord
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, chunk models.RawChunk) []models.ProductRecord

func (f Func) Extract(ctx context.Context, chunk models.RawChunk) []models.ProductRecord {
	return f(ctx, chunk)
}

// Fake returns the same records for every chunk and counts calls.
type Fake struct {
	Records []models.ProductRecord
	Calls   int
}

func (f *Fake) Extract(_ context.Context, _ models.RawChunk) []models.ProductRecord {
	f.Calls++
	out := make([]models.ProductRecord, len(f.Records))
	copy(out, f.Records)
	return out
}
