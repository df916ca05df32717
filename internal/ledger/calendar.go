package ledger

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

// dayStart - полночь локального дня для момента t
func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// civil убирает часовой пояс: дата календаря как полночь UTC
func civil(d datatypes.Date) time.Time {
	y, m, dd := time.Time(d).Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func dateOf(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func datePtr(t *time.Time) *datatypes.Date {
	if t == nil {
		return nil
	}
	d := dateOf(*t)
	return &d
}

// campaignDays - включительное число дней между датами, порядок не важен
func campaignDays(start, end datatypes.Date) int {
	span := math.Abs(civil(end).Sub(civil(start)).Hours()) / 24
	return int(math.Ceil(span)) + 1
}

func totalLimit(quantity int, start, end datatypes.Date) int {
	return quantity * campaignDays(start, end)
}

// ParseDate разбирает дату в формате 2006-01-02
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, ErrValidationf("bad date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
