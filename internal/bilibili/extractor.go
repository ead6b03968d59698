// Package bilibili fetches member and video information from the
// Bilibili web API.
package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/mozbugbox/bitiwo/internal/models"
	"github.com/mozbugbox/bitiwo/internal/shared"
)

const (
	defaultBaseURL  = "https://api.bilibili.com"
	defaultPageSize = 30

	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:98.1) Gecko/20100101 Firefox/98.1"
	referer   = "https://space.bilibili.com/"
)

// VideoURL returns the watch page URL for a video.
func VideoURL(bvid string) string {
	return "https://www.bilibili.com/video/" + bvid
}

// VideoPartURL returns the watch page URL for one part of a video.
func VideoPartURL(bvid string, page int64) string {
	return fmt.Sprintf("https://www.bilibili.com/video/%s?p=%d", bvid, page)
}

// VideoItem is one entry of a member's submission list.
type VideoItem struct {
	AID         int64  `json:"aid"`
	BVID        string `json:"bvid"`
	MID         int64  `json:"mid"`
	Created     int64  `json:"created"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Length      string `json:"length"`
	Picture     string `json:"pic"`
	Play        int64  `json:"play"`
	Comment     int64  `json:"comment"`
	Author      string `json:"author"`
}

// Video converts the API entry into the persisted form.
func (v VideoItem) Video() models.Video {
	return models.Video{
		AID:         v.AID,
		BVID:        v.BVID,
		MID:         v.MID,
		Created:     v.Created,
		Title:       v.Title,
		Description: v.Description,
		Length:      v.Length,
		PictureURL:  v.Picture,
		ViewCount:   v.Play,
		Comment:     v.Comment,
	}
}

// PageMeta describes pagination of a submission list response.
type PageMeta struct {
	Count    int64 `json:"count"`
	PageNum  int64 `json:"pn"`
	PageSize int64 `json:"ps"`
}

// PageInfo is one page of a member's submissions, newest first.
type PageInfo struct {
	Videos []VideoItem
	Page   PageMeta
}

// Profile is the public profile of a member.
type Profile struct {
	MID  int64  `json:"mid"`
	Name string `json:"name"`
	Sign string `json:"sign"`
	Face string `json:"face"`
}

// Options configures an Extractor. Zero values fall back to defaults.
type Options struct {
	BaseURL       string
	Client        *http.Client
	PageSize      int
	FetchInterval float64 // seconds between page requests
	Headers       map[string]string
	Logger        *log.Logger
}

// Extractor downloads member and video information. Page requests are
// paced by a rate limiter so bulk scans stay polite.
type Extractor struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	headers    map[string]string
	limiter    *rate.Limiter
	log        *log.Logger
}

// NewExtractor creates an extractor for the given options.
func NewExtractor(opts Options) *Extractor {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = 1.0
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	headers := map[string]string{
		"User-Agent": userAgent,
		"Referer":    referer,
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	interval := time.Duration(opts.FetchInterval * float64(time.Second))
	return &Extractor{
		baseURL:    opts.BaseURL,
		httpClient: opts.Client,
		pageSize:   opts.PageSize,
		headers:    headers,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		log:        opts.Logger,
	}
}

// apiEnvelope is the common response wrapper of the Bilibili API.
type apiEnvelope struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest performs a paced GET and decodes the envelope's data field
// into result.
func (e *Extractor) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransientFetch, err)
	}

	apiURL := e.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: status %d", shared.ErrTransientFetch, endpoint, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrParse, endpoint, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("%w: %s: api code %d: %s",
			shared.ErrTransientFetch, endpoint, envelope.Code, envelope.Message)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("%w: %s: %v", shared.ErrParse, endpoint, err)
		}
	}
	return nil
}

// VideoPage downloads one page of a member's submissions, newest first.
// Page numbers start at 1.
func (e *Extractor) VideoPage(ctx context.Context, mid int64, page int) (*PageInfo, error) {
	e.log.Debug("fetching video page", "mid", mid, "page", page)

	query := url.Values{
		"mid":     {strconv.FormatInt(mid, 10)},
		"ps":      {strconv.Itoa(e.pageSize)},
		"pn":      {strconv.Itoa(page)},
		"tid":     {"0"},
		"keyword": {""},
		"order":   {"pubdate"},
		"jsonp":   {"jsonp"},
	}

	var data struct {
		List struct {
			VList []VideoItem `json:"vlist"`
		} `json:"list"`
		Page PageMeta `json:"page"`
	}
	if err := e.doRequest(ctx, "/x/space/arc/search", query, &data); err != nil {
		return nil, err
	}

	return &PageInfo{Videos: data.List.VList, Page: data.Page}, nil
}

// AllVideoPages downloads the full submission list of a member, newest
// first across page boundaries.
func (e *Extractor) AllVideoPages(ctx context.Context, mid int64) (*PageInfo, error) {
	first, err := e.VideoPage(ctx, mid, 1)
	if err != nil {
		return nil, err
	}

	pageSize := first.Page.PageSize
	if pageSize <= 0 {
		pageSize = int64(e.pageSize)
	}

	for page := 2; int64(page-1)*pageSize < first.Page.Count; page++ {
		next, err := e.VideoPage(ctx, mid, page)
		if err != nil {
			return nil, err
		}
		first.Videos = append(first.Videos, next.Videos...)
	}
	return first, nil
}

// NewVideos scans pages newest first and returns every item published
// strictly after watermark, in the order received. The scan stops at the
// first item at or below the watermark or at an empty page, so a refresh
// touches only as many pages as it has new content.
func (e *Extractor) NewVideos(ctx context.Context, mid int64, watermark int64) ([]VideoItem, error) {
	var newVideos []VideoItem
	for page := 1; ; page++ {
		info, err := e.VideoPage(ctx, mid, page)
		if err != nil {
			return nil, err
		}
		if len(info.Videos) == 0 {
			return newVideos, nil
		}
		for _, item := range info.Videos {
			if item.Created <= watermark {
				return newVideos, nil
			}
			newVideos = append(newVideos, item)
		}
	}
}

// MemberProfile downloads the public profile of a member.
func (e *Extractor) MemberProfile(ctx context.Context, mid int64) (*Profile, error) {
	query := url.Values{"mid": {strconv.FormatInt(mid, 10)}}

	var profile Profile
	if err := e.doRequest(ctx, "/x/space/acc/info", query, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// VideoDetail downloads current metadata of a single video.
func (e *Extractor) VideoDetail(ctx context.Context, bvid string) (*VideoItem, error) {
	query := url.Values{"bvid": {bvid}}

	var data struct {
		AID     int64  `json:"aid"`
		BVID    string `json:"bvid"`
		Created int64  `json:"pubdate"`
		Title   string `json:"title"`
		Desc    string `json:"desc"`
		Picture string `json:"pic"`
		Owner   struct {
			MID  int64  `json:"mid"`
			Name string `json:"name"`
		} `json:"owner"`
		Stat struct {
			View  int64 `json:"view"`
			Reply int64 `json:"reply"`
		} `json:"stat"`
	}
	if err := e.doRequest(ctx, "/x/web-interface/view", query, &data); err != nil {
		return nil, err
	}

	return &VideoItem{
		AID:         data.AID,
		BVID:        data.BVID,
		MID:         data.Owner.MID,
		Created:     data.Created,
		Title:       data.Title,
		Description: data.Desc,
		Picture:     data.Picture,
		Play:        data.Stat.View,
		Comment:     data.Stat.Reply,
		Author:      data.Owner.Name,
	}, nil
}

// VideoParts downloads the part list of a multi-part video.
func (e *Extractor) VideoParts(ctx context.Context, bvid string) ([]models.VideoPart, error) {
	query := url.Values{"bvid": {bvid}}

	var parts []models.VideoPart
	if err := e.doRequest(ctx, "/x/player/pagelist", query, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}
