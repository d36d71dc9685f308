// Package sightings implements pest sighting reports: creation,
// lookup, search, and per-property statistics. Access is scoped by
// property membership; admins see everything.
package sightings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/db"
	"github.com/pesttrack/pesttrack/internal/models"
)

var (
	ErrNotFound  = errors.New("sightings: sighting not found")
	ErrForbidden = errors.New("sightings: no access to this property")
)

// Service provides sighting storage and reporting.
type Service struct {
	conn  *gorm.DB
	nowFn func() time.Time
}

// NewService builds a Service. A nil nowFn uses time.Now.
func NewService(conn *gorm.DB, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{conn: conn, nowFn: nowFn}
}

// TimeOfDay buckets a timestamp into the reporting periods used by the
// statistics views.
func TimeOfDay(at time.Time) string {
	switch hour := at.Hour(); {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// PropertyIDsFor returns the property IDs the user may act on. Admins
// get every property.
func (s *Service) PropertyIDsFor(user *models.User) ([]uint64, error) {
	if user == nil {
		return nil, fmt.Errorf("sightings: nil user")
	}

	var ids []uint64
	if user.Role == models.RoleAdmin {
		errFind := s.conn.Model(&models.Property{}).Order("id").Pluck("id", &ids).Error
		if errFind != nil {
			return nil, fmt.Errorf("sightings: list properties: %w", errFind)
		}
		return ids, nil
	}

	errFind := s.conn.Model(&models.UserProperty{}).
		Where("user_id = ?", user.ID).
		Order("property_id").
		Pluck("property_id", &ids).Error
	if errFind != nil {
		return nil, fmt.Errorf("sightings: list property links: %w", errFind)
	}
	return ids, nil
}

// canAccess reports whether the user may touch the property.
func (s *Service) canAccess(user *models.User, propertyID uint64) (bool, error) {
	if user.Role == models.RoleAdmin {
		return true, nil
	}
	var count int64
	errCount := s.conn.Model(&models.UserProperty{}).
		Where("user_id = ? AND property_id = ?", user.ID, propertyID).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("sightings: check property access: %w", errCount)
	}
	return count > 0, nil
}

// CreateParams describe a new sighting report.
type CreateParams struct {
	PropertyID  uint64
	SightedAt   time.Time
	Location    string
	RoomType    string
	PestCount   int
	PestSize    string
	PestType    string
	Notes       string
	Weather     string
	Temperature *float64
}

// Create stores a new sighting reported by the user. A zero SightedAt
// means now; the time-of-day bucket is derived from the sighting time.
func (s *Service) Create(user *models.User, params CreateParams) (*models.Sighting, error) {
	ok, errAccess := s.canAccess(user, params.PropertyID)
	if errAccess != nil {
		return nil, errAccess
	}
	if !ok {
		return nil, ErrForbidden
	}

	location := strings.TrimSpace(params.Location)
	if location == "" {
		return nil, fmt.Errorf("sightings: location is required")
	}
	if params.PestCount < 1 {
		params.PestCount = 1
	}
	sightedAt := params.SightedAt
	if sightedAt.IsZero() {
		sightedAt = s.nowFn().UTC()
	}

	sighting := models.Sighting{
		PropertyID:  params.PropertyID,
		ReporterID:  &user.ID,
		SightedAt:   sightedAt,
		Location:    location,
		RoomType:    strings.TrimSpace(params.RoomType),
		PestCount:   params.PestCount,
		PestSize:    strings.TrimSpace(params.PestSize),
		PestType:    strings.TrimSpace(params.PestType),
		Notes:       strings.TrimSpace(params.Notes),
		Weather:     strings.TrimSpace(params.Weather),
		Temperature: params.Temperature,
		TimeOfDay:   TimeOfDay(sightedAt),
	}
	if errCreate := s.conn.Create(&sighting).Error; errCreate != nil {
		return nil, fmt.Errorf("sightings: create: %w", errCreate)
	}
	return &sighting, nil
}

// Get returns one sighting the user may see.
func (s *Service) Get(user *models.User, id uint64) (*models.Sighting, error) {
	var sighting models.Sighting
	if errFind := s.conn.First(&sighting, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sightings: look up sighting: %w", errFind)
	}

	ok, errAccess := s.canAccess(user, sighting.PropertyID)
	if errAccess != nil {
		return nil, errAccess
	}
	if !ok {
		return nil, ErrForbidden
	}
	return &sighting, nil
}

// UpdateParams carry editable sighting fields. Nil pointers leave the
// stored value untouched.
type UpdateParams struct {
	SightedAt   *time.Time
	Location    *string
	RoomType    *string
	PestCount   *int
	PestSize    *string
	PestType    *string
	Notes       *string
	Weather     *string
	Temperature *float64
}

// Update edits a sighting. Residents may only edit their own reports;
// managers and admins may edit any report they can see.
func (s *Service) Update(user *models.User, id uint64, params UpdateParams) (*models.Sighting, error) {
	sighting, errGet := s.Get(user, id)
	if errGet != nil {
		return nil, errGet
	}
	if user.Role == models.RoleResident && (sighting.ReporterID == nil || *sighting.ReporterID != user.ID) {
		return nil, ErrForbidden
	}

	updates := map[string]any{}
	if params.SightedAt != nil {
		updates["sighted_at"] = params.SightedAt.UTC()
		updates["time_of_day"] = TimeOfDay(*params.SightedAt)
	}
	if params.Location != nil {
		location := strings.TrimSpace(*params.Location)
		if location == "" {
			return nil, fmt.Errorf("sightings: location is required")
		}
		updates["location"] = location
	}
	if params.RoomType != nil {
		updates["room_type"] = strings.TrimSpace(*params.RoomType)
	}
	if params.PestCount != nil {
		count := *params.PestCount
		if count < 1 {
			count = 1
		}
		updates["pest_count"] = count
	}
	if params.PestSize != nil {
		updates["pest_size"] = strings.TrimSpace(*params.PestSize)
	}
	if params.PestType != nil {
		updates["pest_type"] = strings.TrimSpace(*params.PestType)
	}
	if params.Notes != nil {
		updates["notes"] = strings.TrimSpace(*params.Notes)
	}
	if params.Weather != nil {
		updates["weather"] = strings.TrimSpace(*params.Weather)
	}
	if params.Temperature != nil {
		updates["temperature"] = *params.Temperature
	}
	if len(updates) == 0 {
		return sighting, nil
	}

	if errUpdate := s.conn.Model(sighting).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("sightings: update: %w", errUpdate)
	}
	return s.Get(user, id)
}

// Delete removes a sighting under the same ownership rules as Update.
func (s *Service) Delete(user *models.User, id uint64) error {
	sighting, errGet := s.Get(user, id)
	if errGet != nil {
		return errGet
	}
	if user.Role == models.RoleResident && (sighting.ReporterID == nil || *sighting.ReporterID != user.ID) {
		return ErrForbidden
	}
	if errDelete := s.conn.Delete(sighting).Error; errDelete != nil {
		return fmt.Errorf("sightings: delete: %w", errDelete)
	}
	return nil
}

// Filter narrows List and Search results.
type Filter struct {
	PropertyID uint64     // Zero means every accessible property.
	PestType   string     // Exact match when set.
	From       *time.Time // Inclusive lower bound on SightedAt.
	To         *time.Time // Inclusive upper bound on SightedAt.
	Limit      int
	Offset     int
}

// List returns the user's visible sightings, newest first.
func (s *Service) List(user *models.User, filter Filter) ([]models.Sighting, error) {
	query, errScope := s.scopedQuery(user, filter.PropertyID)
	if errScope != nil {
		return nil, errScope
	}

	if filter.PestType != "" {
		query = query.Where("pest_type = ?", filter.PestType)
	}
	if filter.From != nil {
		query = query.Where("sighted_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("sighted_at <= ?", filter.To.UTC())
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var results []models.Sighting
	errFind := query.Order("sighted_at DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&results).Error
	if errFind != nil {
		return nil, fmt.Errorf("sightings: list: %w", errFind)
	}
	return results, nil
}

// Search matches the term against location, pest type, and notes.
// Wildcards in the term match literally.
func (s *Service) Search(user *models.User, term string, filter Filter) ([]models.Sighting, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.List(user, filter)
	}

	query, errScope := s.scopedQuery(user, filter.PropertyID)
	if errScope != nil {
		return nil, errScope
	}

	pattern := db.NormalizeLikePattern(s.conn, "%"+db.EscapeLikePattern(term)+"%")
	clause := fmt.Sprintf(`(%s ESCAPE '\' OR %s ESCAPE '\' OR %s ESCAPE '\')`,
		db.CaseInsensitiveLikeExpr(s.conn, "location"),
		db.CaseInsensitiveLikeExpr(s.conn, "pest_type"),
		db.CaseInsensitiveLikeExpr(s.conn, "notes"),
	)
	query = query.Where(clause, pattern, pattern, pattern)

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var results []models.Sighting
	errFind := query.Order("sighted_at DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&results).Error
	if errFind != nil {
		return nil, fmt.Errorf("sightings: search: %w", errFind)
	}
	return results, nil
}

// scopedQuery builds a sightings query limited to the user's properties
// and, optionally, one property within them.
func (s *Service) scopedQuery(user *models.User, propertyID uint64) (*gorm.DB, error) {
	query := s.conn.Model(&models.Sighting{})

	if propertyID != 0 {
		ok, errAccess := s.canAccess(user, propertyID)
		if errAccess != nil {
			return nil, errAccess
		}
		if !ok {
			return nil, ErrForbidden
		}
		return query.Where("property_id = ?", propertyID), nil
	}

	if user.Role == models.RoleAdmin {
		return query, nil
	}
	ids, errIDs := s.PropertyIDsFor(user)
	if errIDs != nil {
		return nil, errIDs
	}
	if len(ids) == 0 {
		// No memberships, no rows.
		return query.Where("1 = 0"), nil
	}
	return query.Where("property_id IN ?", ids), nil
}

// Statistics summarize sighting activity for the scoped properties.
type Statistics struct {
	Total          int64            `json:"total"`
	TotalPests     int64            `json:"total_pests"`
	ByPestType     map[string]int64 `json:"by_pest_type"`
	ByLocation     map[string]int64 `json:"by_location"`
	ByRoomType     map[string]int64 `json:"by_room_type"`
	ByTimeOfDay    map[string]int64 `json:"by_time_of_day"`
	RecentTrend    []TrendPoint     `json:"recent_trend"`
	LastSightingAt *time.Time       `json:"last_sighting_at,omitempty"`
}

// TrendPoint is one day of sighting counts.
type TrendPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// Stats computes summary statistics over the user's visible sightings.
// The trend covers the last seven days including today; days with no
// sightings appear with a zero count.
func (s *Service) Stats(user *models.User, propertyID uint64) (*Statistics, error) {
	query, errScope := s.scopedQuery(user, propertyID)
	if errScope != nil {
		return nil, errScope
	}

	stats := &Statistics{
		ByPestType:  map[string]int64{},
		ByLocation:  map[string]int64{},
		ByRoomType:  map[string]int64{},
		ByTimeOfDay: map[string]int64{},
	}

	if errCount := query.Session(&gorm.Session{}).Count(&stats.Total).Error; errCount != nil {
		return nil, fmt.Errorf("sightings: count: %w", errCount)
	}
	if stats.Total == 0 {
		stats.RecentTrend = emptyTrend(s.nowFn().UTC())
		return stats, nil
	}

	var totalPests *int64
	if errSum := query.Session(&gorm.Session{}).
		Select("SUM(pest_count)").Scan(&totalPests).Error; errSum != nil {
		return nil, fmt.Errorf("sightings: sum pests: %w", errSum)
	}
	if totalPests != nil {
		stats.TotalPests = *totalPests
	}

	for _, group := range []struct {
		column string
		target map[string]int64
	}{
		{"pest_type", stats.ByPestType},
		{"location", stats.ByLocation},
		{"room_type", stats.ByRoomType},
		{"time_of_day", stats.ByTimeOfDay},
	} {
		if errGroup := s.groupCounts(query, group.column, group.target); errGroup != nil {
			return nil, errGroup
		}
	}

	var newest []models.Sighting
	errLast := query.Session(&gorm.Session{}).
		Order("sighted_at DESC").Limit(1).Find(&newest).Error
	if errLast != nil {
		return nil, fmt.Errorf("sightings: last sighting: %w", errLast)
	}
	if len(newest) == 1 {
		at := newest[0].SightedAt
		stats.LastSightingAt = &at
	}

	trend, errTrend := s.trend(query)
	if errTrend != nil {
		return nil, errTrend
	}
	stats.RecentTrend = trend
	return stats, nil
}

// groupCounts fills target with per-value sighting counts for one
// column, skipping empty values.
func (s *Service) groupCounts(query *gorm.DB, column string, target map[string]int64) error {
	type row struct {
		Value string
		Count int64
	}
	var rows []row
	errGroup := query.Session(&gorm.Session{}).
		Select(fmt.Sprintf("%s AS value, COUNT(*) AS count", column)).
		Where(fmt.Sprintf("%s <> ''", column)).
		Group(column).
		Scan(&rows).Error
	if errGroup != nil {
		return fmt.Errorf("sightings: group by %s: %w", column, errGroup)
	}
	for _, item := range rows {
		target[item.Value] = item.Count
	}
	return nil
}

// trendDays is the span of the recent activity trend.
const trendDays = 7

// trend returns daily counts for the last trendDays days, zero-filled.
func (s *Service) trend(query *gorm.DB) ([]TrendPoint, error) {
	now := s.nowFn().UTC()
	since := now.AddDate(0, 0, -(trendDays - 1)).Truncate(24 * time.Hour)

	type row struct {
		Day   string
		Count int64
	}
	var rows []row
	dateExpr := db.DateExpr(s.conn, "sighted_at")
	errTrend := query.Session(&gorm.Session{}).
		Select(fmt.Sprintf("%s AS day, COUNT(*) AS count", dateExpr)).
		Where("sighted_at >= ?", since).
		Group(dateExpr).
		Scan(&rows).Error
	if errTrend != nil {
		return nil, fmt.Errorf("sightings: trend: %w", errTrend)
	}

	counts := make(map[string]int64, len(rows))
	for _, item := range rows {
		counts[item.Day] = item.Count
	}

	points := emptyTrend(now)
	for i := range points {
		points[i].Count = counts[points[i].Date]
	}
	return points, nil
}

// emptyTrend returns trendDays zero points ending today.
func emptyTrend(now time.Time) []TrendPoint {
	points := make([]TrendPoint, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		points = append(points, TrendPoint{Date: day.Format("2006-01-02")})
	}
	return points
}
