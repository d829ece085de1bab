package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"imguard/internal/domain"
)

func TestPeriodFor_StartsAtFirstInstantOfMonth(t *testing.T) {
	now := time.Date(2026, time.October, 14, 17, 5, 0, 0, time.UTC)
	p := domain.PeriodFor(now)

	assert.Equal(t, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC), p.End)
	assert.Equal(t, "2026-10", p.Key())
	assert.True(t, p.Contains(now))
	assert.True(t, p.Contains(p.Start))
	assert.False(t, p.Contains(p.End))
}

func TestPeriodFor_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 02:00 on Nov 1 in UTC+3 is still October in UTC.
	p := domain.PeriodFor(time.Date(2026, time.November, 1, 2, 0, 0, 0, loc))
	assert.Equal(t, "2026-10", p.Key())
}

func TestPeriodFor_DecemberRollsIntoNextYear(t *testing.T) {
	p := domain.PeriodFor(time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), p.End)
}

func TestPercentage(t *testing.T) {
	assert.InDelta(t, 50.0, domain.Percentage(5, 10), 1e-9)
	assert.InDelta(t, 0.0, domain.Percentage(0, 10), 1e-9)
	assert.InDelta(t, 100.0, domain.Percentage(0, 0), 1e-9)
}

func TestNormalizeMediaType(t *testing.T) {
	assert.Equal(t, domain.MediaTypeJPEG, domain.NormalizeMediaType("image/jpg"))
	assert.Equal(t, domain.MediaTypeJPEG, domain.NormalizeMediaType(" IMAGE/JPEG "))
	assert.Equal(t, domain.MediaTypePNG, domain.NormalizeMediaType("image/png; charset=binary"))
	assert.False(t, domain.NormalizeMediaType("image/svg+xml").IsAllowed())
	assert.True(t, domain.NormalizeMediaType("image/webp").IsAllowed())
}

func TestUsageTotals_AddUploadDelta(t *testing.T) {
	total := domain.UsageTotals{StorageBytes: 100, ClassAOps: 2, ClassBOps: 7}.Add(domain.UploadDelta(50))
	assert.Equal(t, domain.UsageTotals{StorageBytes: 150, ClassAOps: 3, ClassBOps: 7}, total)
}
