package vacation

import (
	"sync"
	"time"

	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// Calendar 工作日计算器
// 节假日集合带TTL缓存，过期后下一次计算重新加载
type Calendar struct {
	repo *repository.VacationRepository
	ttl  time.Duration

	mu       sync.RWMutex
	holidays map[string]struct{}
	loadedAt time.Time
}

func NewCalendar(repo *repository.VacationRepository, ttl time.Duration) *Calendar {
	return &Calendar{
		repo: repo,
		ttl:  ttl,
	}
}

// holidaySet 返回节假日日期集合（缓存过期时重新加载）
func (c *Calendar) holidaySet() (map[string]struct{}, error) {
	c.mu.RLock()
	if c.holidays != nil && time.Since(c.loadedAt) < c.ttl {
		set := c.holidays
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// 双检：等锁期间可能已有别的goroutine完成加载
	if c.holidays != nil && time.Since(c.loadedAt) < c.ttl {
		return c.holidays, nil
	}

	holidays, err := c.repo.FindAllHolidays()
	if err != nil {
		// 加载失败时沿用旧缓存，避免节假日查询故障阻塞审批
		if c.holidays != nil {
			logger.Warnf("Failed to refresh holiday cache, using stale data: %v", err)
			return c.holidays, nil
		}
		return nil, err
	}

	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[h.Date.Format(dateLayout)] = struct{}{}
	}

	c.holidays = set
	c.loadedAt = time.Now()
	return set, nil
}

// Invalidate 清空缓存（节假日增删后调用）
func (c *Calendar) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays = nil
}

// ComputeBusinessDays 计算闭区间内的工作日数
// 排除周六、周日和节假日表中的日期
func (c *Calendar) ComputeBusinessDays(start, end time.Time) (int, error) {
	start = truncateToDate(start)
	end = truncateToDate(end)

	if end.Before(start) {
		return 0, errs.Validation("end date %s is before start date %s",
			end.Format(dateLayout), start.Format(dateLayout))
	}

	holidays, err := c.holidaySet()
	if err != nil {
		return 0, err
	}

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if _, isHoliday := holidays[d.Format(dateLayout)]; isHoliday {
			continue
		}
		days++
	}

	return days, nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
