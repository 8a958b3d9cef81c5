package trendsource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shoptrend/internal/model"
)

// DefaultBaseURL 趋势数据 API 默认地址
const DefaultBaseURL = "https://openapi.naver.com"

const (
	keywordsPath = "/v1/datalab/shopping/category/keywords"
	devicePath   = "/v1/datalab/shopping/category/keyword/device"
	genderPath   = "/v1/datalab/shopping/category/keyword/gender"
	agePath      = "/v1/datalab/shopping/category/keyword/age"
)

// Config 客户端配置
type Config struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	Category          string
	Timeout           time.Duration
	Breakdowns        bool // 是否同时拉取设备/性别/年龄分布
	PrintResponseBody bool
	Logger            *zap.Logger
}

// Client 购物搜索趋势 API 客户端
type Client struct {
	http       *resty.Client
	category   string
	breakdowns bool
	printBody  bool
	logger     *zap.Logger
}

type keywordGroup struct {
	Name  string   `json:"name"`
	Param []string `json:"param"`
}

type keywordsRequest struct {
	StartDate string         `json:"startDate"`
	EndDate   string         `json:"endDate"`
	TimeUnit  string         `json:"timeUnit"`
	Category  string         `json:"category"`
	Keyword   []keywordGroup `json:"keyword"`
}

type breakdownRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	TimeUnit  string `json:"timeUnit"`
	Category  string `json:"category"`
	Keyword   string `json:"keyword"`
}

type dataPoint struct {
	Period string  `json:"period"`
	Group  string  `json:"group,omitempty"`
	Ratio  float64 `json:"ratio"`
}

type trendResponse struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	TimeUnit  string `json:"timeUnit"`
	Results   []struct {
		Title   string      `json:"title"`
		Keyword []string    `json:"keyword"`
		Data    []dataPoint `json:"data"`
	} `json:"results"`
}

type apiError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "shoptrend/1.0").
		SetHeader("X-Naver-Client-Id", cfg.ClientID).
		SetHeader("X-Naver-Client-Secret", cfg.ClientSecret)

	return &Client{
		http:       http,
		category:   cfg.Category,
		breakdowns: cfg.Breakdowns,
		printBody:  cfg.PrintResponseBody,
		logger:     logger,
	}
}

// FetchSamples 拉取关键词在 [from, to] 内每天的搜索比率
//
// 分布数据拉取失败只记录日志，样本仍然返回。
func (c *Client) FetchSamples(ctx context.Context, keyword string, from, to time.Time) ([]model.TrendSample, error) {
	keyword = model.NormalizeKeyword(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is empty", model.ErrValidation)
	}
	start, end := model.DayOf(from).Format(time.DateOnly), model.DayOf(to).Format(time.DateOnly)

	var resp trendResponse
	err := c.post(ctx, keywordsPath, keywordsRequest{
		StartDate: start,
		EndDate:   end,
		TimeUnit:  "date",
		Category:  c.category,
		Keyword:   []keywordGroup{{Name: keyword, Param: []string{keyword}}},
	}, &resp)
	if err != nil {
		return nil, err
	}

	var samples []model.TrendSample
	for _, result := range resp.Results {
		for _, point := range result.Data {
			day, err := time.Parse(time.DateOnly, point.Period)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid period %q", model.ErrExternalSource, point.Period)
			}
			samples = append(samples, model.TrendSample{
				Keyword: keyword,
				Date:    day,
				Ratio:   decimal.NewFromFloat(point.Ratio).Round(model.RatioPlaces),
			})
		}
	}

	if c.breakdowns && len(samples) > 0 {
		c.attachBreakdowns(ctx, keyword, start, end, samples)
	}

	c.logger.Debug("trend samples fetched",
		zap.String("keyword", keyword),
		zap.String("start", start),
		zap.String("end", end),
		zap.Int("count", len(samples)))
	return samples, nil
}

func (c *Client) attachBreakdowns(ctx context.Context, keyword, start, end string, samples []model.TrendSample) {
	req := breakdownRequest{StartDate: start, EndDate: end, TimeUnit: "date", Category: c.category, Keyword: keyword}

	for _, b := range []struct {
		name string
		path string
		set  func(s *model.TrendSample, d model.Distribution)
	}{
		{"device", devicePath, func(s *model.TrendSample, d model.Distribution) { s.DeviceDistribution = d }},
		{"gender", genderPath, func(s *model.TrendSample, d model.Distribution) { s.GenderDistribution = d }},
		{"age", agePath, func(s *model.TrendSample, d model.Distribution) { s.AgeDistribution = d }},
	} {
		var resp trendResponse
		if err := c.post(ctx, b.path, req, &resp); err != nil {
			c.logger.Warn("分布数据拉取失败", zap.String("keyword", keyword), zap.String("breakdown", b.name), zap.Error(err))
			continue
		}
		byDay := distributions(resp)
		for i := range samples {
			if d, ok := byDay[samples[i].Date.Format(time.DateOnly)]; ok {
				b.set(&samples[i], d)
			}
		}
	}
}

// distributions 将每天各分组的相对比率换算为百分比分布
func distributions(resp trendResponse) map[string]model.Distribution {
	raw := make(map[string]map[string]decimal.Decimal)
	for _, result := range resp.Results {
		for _, p := range result.Data {
			if p.Group == "" || p.Ratio < 0 {
				continue
			}
			if raw[p.Period] == nil {
				raw[p.Period] = make(map[string]decimal.Decimal)
			}
			raw[p.Period][p.Group] = raw[p.Period][p.Group].Add(decimal.NewFromFloat(p.Ratio))
		}
	}

	out := make(map[string]model.Distribution, len(raw))
	for period, groups := range raw {
		total := decimal.Zero
		for _, v := range groups {
			total = total.Add(v)
		}
		if total.IsZero() {
			continue
		}
		// 按分组名排序，保证舍入结果稳定
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)

		d := make(model.Distribution, len(groups))
		for _, name := range names {
			d[name] = groups[name].Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out[period] = d
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: request %s: %w", model.ErrExternalSource, path, err)
	}

	if c.printBody {
		c.logger.Info("trend api response",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", string(resp.Body())))
	}

	if resp.IsError() {
		msg := strings.TrimSpace(apiErr.ErrorMessage)
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("%w: %s returned %d: %s", model.ErrExternalSource, path, resp.StatusCode(), msg)
	}
	return nil
}
