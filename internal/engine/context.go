package engine

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
)

// workingHoursRe matches ranges like "9:00-18:00" or "09:00 – 17:30".
var workingHoursRe = regexp.MustCompile(`([0-9]{1,2}):([0-9]{2})\s*[-–]\s*([0-9]{1,2}):([0-9]{2})`)

// StaticContextProvider serves a fixed business context, recomputing the
// IsBusinessHours flag from the working-hours range on every fetch.
type StaticContextProvider struct {
	Base models.BusinessContext
	Now  func() time.Time
}

// NewStaticContextProvider creates a provider around a fixed context.
func NewStaticContextProvider(base models.BusinessContext) *StaticContextProvider {
	return &StaticContextProvider{Base: base, Now: time.Now}
}

// BusinessContext returns the fixed context with a fresh business-hours flag.
func (p *StaticContextProvider) BusinessContext(ctx context.Context) (models.BusinessContext, error) {
	bctx := p.Base
	now := p.Now()
	bctx.IsBusinessHours = withinWorkingHours(bctx.WorkingHours, now)
	return bctx, nil
}

// withinWorkingHours reports whether t falls inside the configured range. An
// unparseable range means always within hours.
func withinWorkingHours(hours string, t time.Time) bool {
	m := workingHoursRe.FindStringSubmatch(hours)
	if m == nil {
		return true
	}
	startH, _ := strconv.Atoi(m[1])
	startM, _ := strconv.Atoi(m[2])
	endH, _ := strconv.Atoi(m[3])
	endM, _ := strconv.Atoi(m[4])

	minutes := t.Hour()*60 + t.Minute()
	start := startH*60 + startM
	end := endH*60 + endM
	return minutes >= start && minutes < end
}
