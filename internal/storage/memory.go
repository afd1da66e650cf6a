package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
)

// InMemoryStore backs every repository interface with maps. It is used
// by the test suite and as a fallback when PostgreSQL is not reachable
// at startup. Aggregations replay the same grouping the SQL layer
// performs, including the shared zero-divisor guard.
//
// Per-interface views are exposed through the accessor methods at the
// bottom of this file.
type InMemoryStore struct {
	mu sync.RWMutex

	users       map[int64]*models.User
	tokens      map[string]*models.OAuthToken // "userID/provider"
	datasources map[int64]*models.Datasource
	campaigns   map[int64]*models.Campaign
	metrics     map[string]*models.PerformanceRow // "dsID/campaignID/date"

	nextUserID       int64
	nextDatasourceID int64
	nextCampaignID   int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:       make(map[int64]*models.User),
		tokens:      make(map[string]*models.OAuthToken),
		datasources: make(map[int64]*models.Datasource),
		campaigns:   make(map[int64]*models.Campaign),
		metrics:     make(map[string]*models.PerformanceRow),
	}
}

func tokenKey(userID int64, provider models.Provider) string {
	return fmt.Sprintf("%d/%s", userID, provider)
}

func metricKey(datasourceID, campaignID int64, date string) string {
	return fmt.Sprintf("%d/%d/%s", datasourceID, campaignID, date)
}

// ---- Users ----

func (s *InMemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	s.nextUserID++
	u.ID = s.nextUserID
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.GoogleOAuthID != "" && u.GoogleOAuthID == googleID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) LinkGoogleID(ctx context.Context, id int64, googleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperror.NotFound("user", fmt.Sprintf("%d", id))
	}
	u.GoogleOAuthID = googleID
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) TouchLastLogin(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		now := time.Now().UTC()
		u.LastLogin = &now
	}
	return nil
}

// ---- Tokens ----

func (s *InMemoryStore) StoreToken(ctx context.Context, t *models.OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	s.tokens[tokenKey(t.UserID, t.Provider)] = &cp
	return nil
}

func (s *InMemoryStore) GetToken(ctx context.Context, userID int64, provider models.Provider) (*models.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tokens[tokenKey(userID, provider)]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) DeleteToken(ctx context.Context, userID int64, provider models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey(userID, provider))
	return nil
}

// ---- Datasources ----

func (s *InMemoryStore) GetOrCreateDatasource(ctx context.Context, userID int64, sourceName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.datasources {
		if d.UserID == userID && d.SourceName == sourceName {
			return d.ID, nil
		}
	}
	s.nextDatasourceID++
	d := &models.Datasource{
		ID:         s.nextDatasourceID,
		UserID:     userID,
		SourceName: sourceName,
		CreatedAt:  time.Now().UTC(),
	}
	s.datasources[d.ID] = d
	return d.ID, nil
}

func (s *InMemoryStore) GetDatasourceID(ctx context.Context, userID int64, sourceName string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.datasources {
		if d.UserID == userID && d.SourceName == sourceName {
			return d.ID, nil
		}
	}
	return 0, nil
}

func (s *InMemoryStore) ListDatasources(ctx context.Context, userID int64) ([]*models.Datasource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*models.Datasource
	for _, d := range s.datasources {
		if d.UserID == userID {
			cp := *d
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemoryStore) DeleteDatasource(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasources[id]
	if !ok || d.UserID != userID {
		return apperror.NotFound("datasource", fmt.Sprintf("%d", id))
	}
	delete(s.datasources, id)
	// Cascade, as the schema's foreign keys do.
	for cid, c := range s.campaigns {
		if c.DatasourceID == id {
			delete(s.campaigns, cid)
		}
	}
	prefix := fmt.Sprintf("%d/", id)
	for k := range s.metrics {
		if strings.HasPrefix(k, prefix) {
			delete(s.metrics, k)
		}
	}
	return nil
}

// ---- Campaigns ----

func (s *InMemoryStore) GetOrCreateCampaign(ctx context.Context, c *models.Campaign) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, apperror.ValidationFailed("campaign", err.Error())
	}
	if c.Name == "" {
		c.Name = c.ExternalID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.campaigns {
		if existing.DatasourceID != c.DatasourceID {
			continue
		}
		if c.ExternalID != "" {
			if existing.ExternalID == c.ExternalID {
				c.ID = existing.ID
				return existing.ID, nil
			}
			continue
		}
		if existing.ExternalID == "" && existing.Name == c.Name {
			c.ID = existing.ID
			return existing.ID, nil
		}
	}
	s.nextCampaignID++
	c.ID = s.nextCampaignID
	c.CreatedAt = time.Now().UTC()
	cp := *c
	s.campaigns[c.ID] = &cp
	return c.ID, nil
}

func (s *InMemoryStore) GetCampaignByID(ctx context.Context, id int64) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) ListCampaignsByDatasource(ctx context.Context, datasourceID int64) ([]*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*models.Campaign
	for _, c := range s.campaigns {
		if c.DatasourceID == datasourceID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// ---- Metrics ----

func (s *InMemoryStore) UpsertMetrics(ctx context.Context, row *models.PerformanceRow) error {
	if _, err := models.ParseDate(row.Date); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.metrics[metricKey(row.DatasourceID, row.CampaignID, row.Date)] = &cp
	return nil
}

func (s *InMemoryStore) UpsertMetricsBatch(ctx context.Context, rows []*models.PerformanceRow) error {
	for _, row := range rows {
		if err := s.UpsertMetrics(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryStore) GetMetrics(ctx context.Context, datasourceID, campaignID int64, date string) (*models.PerformanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row, ok := s.metrics[metricKey(datasourceID, campaignID, date)]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

// MetricCount returns the number of stored performance rows.
func (s *InMemoryStore) MetricCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

// ---- Reporting ----

// rowsInRange returns the user's metric rows within [start, end],
// ordered by date. Lexicographic comparison is correct for YYYY-MM-DD.
// Callers must hold at least a read lock.
func (s *InMemoryStore) rowsInRange(userID int64, start, end string) []*models.PerformanceRow {
	var res []*models.PerformanceRow
	for _, row := range s.metrics {
		ds, ok := s.datasources[row.DatasourceID]
		if !ok || ds.UserID != userID {
			continue
		}
		if row.Date < start || row.Date > end {
			continue
		}
		res = append(res, row)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res
}

func (s *InMemoryStore) FilterByDay(ctx context.Context, userID int64, date string) ([]*DailyRecord, error) {
	return s.FilterByRange(ctx, userID, date, date)
}

func (s *InMemoryStore) FilterByRange(ctx context.Context, userID int64, start, end string) ([]*DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*DailyRecord, 0)
	for _, row := range s.rowsInRange(userID, start, end) {
		res = append(res, &DailyRecord{
			Date:              row.Date,
			Source:            s.datasources[row.DatasourceID].SourceName,
			Costs:             row.Costs,
			Conversions:       row.Conversions,
			CostPerConversion: row.CostPerConversion,
			Impressions:       row.Impressions,
			Clicks:            row.Clicks,
			Sessions:          row.Sessions,
			CostPerClick:      row.CostPerClick,
		})
	}
	return res, nil
}

func (s *InMemoryStore) AggregateByDay(ctx context.Context, userID int64, start, end string) ([]*DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string]*DailySummary)
	for _, row := range s.rowsInRange(userID, start, end) {
		g, ok := groups[row.Date]
		if !ok {
			g = &DailySummary{Date: row.Date}
			groups[row.Date] = g
		}
		g.Costs += row.Costs
		g.Conversions += row.Conversions
		g.Impressions += row.Impressions
		g.Clicks += row.Clicks
		g.Sessions += row.Sessions
	}
	res := make([]*DailySummary, 0, len(groups))
	for _, g := range groups {
		g.CostPerClick = models.Ratio(g.Costs, float64(g.Clicks))
		g.CostPerConversion = models.Ratio(g.Costs, g.Conversions)
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}

func (s *InMemoryStore) AggregateByChannel(ctx context.Context, userID int64, start, end string) ([]*ChannelSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string]*ChannelSummary)
	for _, row := range s.rowsInRange(userID, start, end) {
		source := s.datasources[row.DatasourceID].SourceName
		g, ok := groups[source]
		if !ok {
			g = &ChannelSummary{Source: source}
			groups[source] = g
		}
		g.Costs += row.Costs
		g.Impressions += row.Impressions
		g.Clicks += row.Clicks
		g.Sessions += row.Sessions
		g.Conversions += row.Conversions
	}
	res := make([]*ChannelSummary, 0, len(groups))
	for _, g := range groups {
		g.CostPerClick = models.Ratio(g.Costs, float64(g.Clicks))
		g.CostPerConversion = models.Ratio(g.Costs, g.Conversions)
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Source < res[j].Source })
	return res, nil
}

func (s *InMemoryStore) AggregateByCampaign(ctx context.Context, userID int64, start, end string) ([]*CampaignSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string]*CampaignSummary)
	for _, row := range s.rowsInRange(userID, start, end) {
		source := s.datasources[row.DatasourceID].SourceName
		name := ""
		if c, ok := s.campaigns[row.CampaignID]; ok {
			name = c.Name
		}
		key := source + "\x00" + name
		g, ok := groups[key]
		if !ok {
			g = &CampaignSummary{TrafficSource: source, CampaignName: name}
			groups[key] = g
		}
		g.Costs += row.Costs
		g.Impressions += row.Impressions
		g.Clicks += row.Clicks
		g.Sessions += row.Sessions
		g.Conversions += row.Conversions
	}
	res := make([]*CampaignSummary, 0, len(groups))
	for _, g := range groups {
		g.CostPerClick = models.Ratio(g.Costs, float64(g.Clicks))
		g.CostPerSession = models.Ratio(g.Costs, float64(g.Sessions))
		g.CostPerConversion = models.Ratio(g.Costs, g.Conversions)
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Costs > res[j].Costs })
	return res, nil
}

func (s *InMemoryStore) AggregateByMonth(ctx context.Context, userID int64, start, end string) ([]*MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[string]*MonthlySummary)
	for _, row := range s.rowsInRange(userID, start, end) {
		month := row.Date[:7]
		g, ok := groups[month]
		if !ok {
			g = &MonthlySummary{Month: month}
			groups[month] = g
		}
		g.Costs += row.Costs
		g.Impressions += row.Impressions
		g.Clicks += row.Clicks
		g.Sessions += row.Sessions
		g.Conversions += row.Conversions
	}
	res := make([]*MonthlySummary, 0, len(groups))
	for _, g := range groups {
		g.CostPerClick = models.Ratio(g.Costs, float64(g.Clicks))
		g.CostPerConversion = models.Ratio(g.Costs, g.Conversions)
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Month < res[j].Month })
	return res, nil
}

// ---- Interface views ----

type memUserRepo struct{ s *InMemoryStore }

func (r memUserRepo) Create(ctx context.Context, u *models.User) error { return r.s.CreateUser(ctx, u) }
func (r memUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.s.GetUserByID(ctx, id)
}
func (r memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.s.GetUserByEmail(ctx, email)
}
func (r memUserRepo) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return r.s.GetUserByGoogleID(ctx, googleID)
}
func (r memUserRepo) LinkGoogleID(ctx context.Context, id int64, googleID string) error {
	return r.s.LinkGoogleID(ctx, id, googleID)
}
func (r memUserRepo) TouchLastLogin(ctx context.Context, id int64) error {
	return r.s.TouchLastLogin(ctx, id)
}

type memTokenRepo struct{ s *InMemoryStore }

func (r memTokenRepo) Store(ctx context.Context, t *models.OAuthToken) error {
	return r.s.StoreToken(ctx, t)
}
func (r memTokenRepo) Get(ctx context.Context, userID int64, provider models.Provider) (*models.OAuthToken, error) {
	return r.s.GetToken(ctx, userID, provider)
}
func (r memTokenRepo) Delete(ctx context.Context, userID int64, provider models.Provider) error {
	return r.s.DeleteToken(ctx, userID, provider)
}

type memDatasourceRepo struct{ s *InMemoryStore }

func (r memDatasourceRepo) GetOrCreate(ctx context.Context, userID int64, sourceName string) (int64, error) {
	return r.s.GetOrCreateDatasource(ctx, userID, sourceName)
}
func (r memDatasourceRepo) GetID(ctx context.Context, userID int64, sourceName string) (int64, error) {
	return r.s.GetDatasourceID(ctx, userID, sourceName)
}
func (r memDatasourceRepo) ListByUser(ctx context.Context, userID int64) ([]*models.Datasource, error) {
	return r.s.ListDatasources(ctx, userID)
}
func (r memDatasourceRepo) Delete(ctx context.Context, userID, id int64) error {
	return r.s.DeleteDatasource(ctx, userID, id)
}

type memCampaignRepo struct{ s *InMemoryStore }

func (r memCampaignRepo) GetOrCreate(ctx context.Context, c *models.Campaign) (int64, error) {
	return r.s.GetOrCreateCampaign(ctx, c)
}
func (r memCampaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	return r.s.GetCampaignByID(ctx, id)
}
func (r memCampaignRepo) ListByDatasource(ctx context.Context, datasourceID int64) ([]*models.Campaign, error) {
	return r.s.ListCampaignsByDatasource(ctx, datasourceID)
}

type memMetricsRepo struct{ s *InMemoryStore }

func (r memMetricsRepo) Upsert(ctx context.Context, row *models.PerformanceRow) error {
	return r.s.UpsertMetrics(ctx, row)
}
func (r memMetricsRepo) UpsertBatch(ctx context.Context, rows []*models.PerformanceRow) error {
	return r.s.UpsertMetricsBatch(ctx, rows)
}
func (r memMetricsRepo) Get(ctx context.Context, datasourceID, campaignID int64, date string) (*models.PerformanceRow, error) {
	return r.s.GetMetrics(ctx, datasourceID, campaignID, date)
}

// Users returns the UserRepo view of the store.
func (s *InMemoryStore) Users() UserRepo { return memUserRepo{s} }

// Tokens returns the TokenRepo view of the store.
func (s *InMemoryStore) Tokens() TokenRepo { return memTokenRepo{s} }

// Datasources returns the DatasourceRepo view of the store.
func (s *InMemoryStore) Datasources() DatasourceRepo { return memDatasourceRepo{s} }

// Campaigns returns the CampaignRepo view of the store.
func (s *InMemoryStore) Campaigns() CampaignRepo { return memCampaignRepo{s} }

// Metrics returns the MetricsRepo view of the store.
func (s *InMemoryStore) Metrics() MetricsRepo { return memMetricsRepo{s} }

// Reporting returns the ReportingRepo view of the store.
func (s *InMemoryStore) Reporting() ReportingRepo { return s }
