package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// DefaultGapHorizonDays bounds the next-availability search.
const DefaultGapHorizonDays = 45

// GapFinder suggests the next dates with spare capacity for a room type.
type GapFinder struct {
	catalog      *repository.CatalogRepo
	reservations *repository.ReservationRepo
	horizon      int
	logger       *zap.Logger
}

// NewGapFinder returns a finder with the given default horizon in days.
func NewGapFinder(catalog *repository.CatalogRepo, reservations *repository.ReservationRepo, horizonDays int, logger *zap.Logger) *GapFinder {
	if horizonDays <= 0 {
		horizonDays = DefaultGapHorizonDays
	}
	return &GapFinder{catalog: catalog, reservations: reservations, horizon: horizonDays, logger: logger.Named("gaps")}
}

// FindGaps walks each day of [from, from+horizonDays) and collapses runs of
// days whose occupancy is below the in-service room count into gaps.  A
// gap ends on the first occupied day after it, or at the window boundary,
// in which case it is marked open.  horizonDays <= 0 uses the default.
func (g *GapFinder) FindGaps(ctx context.Context, typeID uint64, from model.Date, horizonDays int) (model.GapReport, error) {
	report := model.GapReport{Gaps: []model.Gap{}}
	if from.IsZero() {
		return report, ErrInvalidInterval
	}
	if horizonDays <= 0 {
		horizonDays = g.horizon
	}
	if _, err := g.catalog.GetRoomType(ctx, typeID); err != nil {
		return report, notFound(err, "room type", typeID)
	}
	total, err := g.catalog.CountInService(ctx, typeID)
	if err != nil {
		return report, err
	}
	if total == 0 {
		return report, ErrNoUnits
	}
	end := from.AddDays(horizonDays)
	held, err := g.reservations.ListHolding(ctx, typeID, from, end)
	if err != nil {
		return report, err
	}

	var start model.Date
	inGap := false
	for day := from; day.Before(end); day = day.AddDays(1) {
		occupancy := 0
		for _, r := range held {
			if r.Interval().Covers(day) {
				occupancy += r.Quantity
			}
		}
		free := occupancy < total
		switch {
		case free && !inGap:
			start, inGap = day, true
		case !free && inGap:
			report.Gaps = append(report.Gaps, model.Gap{Start: start, End: day})
			inGap = false
		}
	}
	if inGap {
		report.Gaps = append(report.Gaps, model.Gap{Start: start, End: end, Open: true})
	}
	if len(report.Gaps) > 0 {
		next := report.Gaps[0].Start
		report.NextAvailableDate = &next
	}
	g.logger.Debug("gap search",
		zap.Uint64("room_type_id", typeID),
		zap.Stringer("from", from),
		zap.Int("horizon_days", horizonDays),
		zap.Int("gaps", len(report.Gaps)))
	return report, nil
}
