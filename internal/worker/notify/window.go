package notify

import (
	"fmt"
	"time"

	"github.com/hitoshi/dhcommerce/internal/model"
)

// 取引日時の保存形式
const (
	tradeDateLayout = "2006-01-02"
	tradeTimeLayout = "15:04"
)

// ScheduledAt は取引日(YYYY-MM-DD)と時刻(HH:MM)を組織タイムゾーンの壁時計として解釈し、
// 対応する時刻を返す。いずれかが空またはパースできない場合はmodel.ErrMalformedScheduleを返す。
func ScheduledAt(date, clock string, loc *time.Location) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("%w: date=%q time=%q", model.ErrMalformedSchedule, date, clock)
	}
	at, err := time.ParseInLocation(tradeDateLayout+" "+tradeTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", model.ErrMalformedSchedule, err)
	}
	return at, nil
}

// DueForReminder は now ≤ at ≤ now+lead のときtrueを返す。両端を含む。
func DueForReminder(at, now time.Time, lead time.Duration) bool {
	return !at.Before(now) && !at.After(now.Add(lead))
}

// DueForRatingRequest は at ≤ now−grace のときtrueを返す。境界を含む。
func DueForRatingRequest(at, now time.Time, grace time.Duration) bool {
	return !at.After(now.Add(-grace))
}
