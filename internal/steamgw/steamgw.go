// Package steamgw is the only package allowed to talk to Steam: OpenID 2.0
// login verification, profile lookups against the Steam Web API, and
// workshop downloads via the DepotDownloader subprocess.
package steamgw

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kz-go/kz-api/internal/steamid"
)

const openIDLoginURL = "https://steamcommunity.com/openid/login"

// Gateway issues OpenID login URLs, verifies callbacks, fetches player
// summaries, and downloads workshop items.
type Gateway struct {
	webAPIKey       string
	publicURL       string
	returnPath      string
	depotBinaryPath string
	depotOutputDir  string
	cacheTTL        time.Duration
	httpClient      *http.Client

	cacheMu        sync.Mutex
	cache          map[uint64]cacheEntry
	evictorStarted sync.Once
	scheduler      gocron.Scheduler
}

// cacheEntry is a previously-downloaded workshop asset kept around for
// cacheTTL so repeated downloads of the same pubfile within that window
// skip the DepotDownloader subprocess entirely.
type cacheEntry struct {
	asset     WorkshopAsset
	expiresAt time.Time
}

// Config configures a Gateway.
type Config struct {
	WebAPIKey       string
	PublicURL       string
	ReturnPath      string
	DepotBinaryPath string
	DepotOutputDir  string
	CacheTTL        time.Duration
}

// New builds a Gateway from cfg.
func New(cfg Config) *Gateway {
	return &Gateway{
		webAPIKey:       cfg.WebAPIKey,
		publicURL:       cfg.PublicURL,
		returnPath:      cfg.ReturnPath,
		depotBinaryPath: cfg.DepotBinaryPath,
		depotOutputDir:  cfg.DepotOutputDir,
		cacheTTL:        cfg.CacheTTL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		cache:           make(map[uint64]cacheEntry),
	}
}

// LoginURL builds the redirect target for a browser beginning Steam login.
func (g *Gateway) LoginURL(state string) string {
	returnTo := g.publicURL + g.returnPath
	if state != "" {
		returnTo += "?state=" + url.QueryEscape(state)
	}

	q := url.Values{}
	q.Set("openid.ns", "http://specs.openid.net/auth/2.0")
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", returnTo)
	q.Set("openid.realm", g.publicURL)
	q.Set("openid.identity", "http://specs.openid.net/auth/2.0/identifier_select")
	q.Set("openid.claimed_id", "http://specs.openid.net/auth/2.0/identifier_select")
	return openIDLoginURL + "?" + q.Encode()
}

// VerifyCallback reposts the callback's query parameters to Steam with
// openid.mode=check_authentication and, if Steam confirms is_valid:true,
// extracts and returns the SteamID embedded in openid.claimed_id.
func (g *Gateway) VerifyCallback(ctx context.Context, callback url.Values) (steamid.ID, error) {
	verify := url.Values{}
	for k, v := range callback {
		verify[k] = v
	}
	verify.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openIDLoginURL, strings.NewReader(verify.Encode()))
	if err != nil {
		return 0, fmt.Errorf("steamgw: build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("steamgw: verify callback: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("steamgw: read verify response: %w", err)
	}

	valid := false
	for _, line := range strings.Split(string(body), "\n") {
		if strings.TrimSpace(line) == "is_valid:true" {
			valid = true
			break
		}
	}
	if !valid {
		return 0, fmt.Errorf("steamgw: openid assertion rejected")
	}

	claimedID := callback.Get("openid.claimed_id")
	idx := strings.LastIndex(claimedID, "/")
	if idx == -1 || idx == len(claimedID)-1 {
		return 0, fmt.Errorf("steamgw: malformed claimed_id %q", claimedID)
	}
	raw, err := strconv.ParseUint(claimedID[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("steamgw: malformed claimed_id %q: %w", claimedID, err)
	}
	return steamid.New(raw)
}

// PlayerSummary is the subset of the Steam Web API's GetPlayerSummaries
// response this service cares about.
type PlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	AvatarFull  string `json:"avatarfull"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}

// PlayerSummary fetches the display name and avatar for id.
func (g *Gateway) PlayerSummary(ctx context.Context, id steamid.ID) (PlayerSummary, error) {
	endpoint := "https://api.steampowered.com/ISteamUser/GetPlayerSummaries/v2/"
	q := url.Values{}
	q.Set("key", g.webAPIKey)
	q.Set("steamids", id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return PlayerSummary{}, fmt.Errorf("steamgw: build summary request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return PlayerSummary{}, fmt.Errorf("steamgw: fetch player summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PlayerSummary{}, fmt.Errorf("steamgw: player summary returned %d", resp.StatusCode)
	}

	var out playerSummariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PlayerSummary{}, fmt.Errorf("steamgw: decode player summary: %w", err)
	}
	if len(out.Response.Players) == 0 {
		return PlayerSummary{}, fmt.Errorf("steamgw: no player found for %s", id)
	}
	return out.Response.Players[0], nil
}

// WorkshopAsset is the result of downloading and checksumming a workshop
// item.
type WorkshopAsset struct {
	Path     string
	Checksum string // MD5 hex
}

type workshopDetailsResponse struct {
	Response struct {
		PublishedFileDetails []struct {
			Title      string `json:"title"`
			Consumer   int    `json:"consumer_app_id"`
			ResultCode int    `json:"result"`
		} `json:"publishedfiledetails"`
	} `json:"response"`
}

// ErrNotAMap is returned when a workshop item cannot be found or was not
// published for the KZ-relevant Steam app.
var ErrNotAMap = fmt.Errorf("steamgw: workshop item is not a map")

// WorkshopItemTitle fetches a workshop item's display title from the Steam
// Web API, to be used as the map's name before the file itself is
// downloaded and checksummed.
func (g *Gateway) WorkshopItemTitle(ctx context.Context, workshopID uint64) (string, error) {
	endpoint := "https://api.steampowered.com/IPublishedFileService/GetDetails/v1/"
	form := url.Values{}
	form.Set("key", g.webAPIKey)
	form.Set("publishedfileids[0]", strconv.FormatUint(workshopID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("steamgw: build workshop details request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("steamgw: fetch workshop details: %w", err)
	}
	defer resp.Body.Close()

	var out workshopDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("steamgw: decode workshop details: %w", err)
	}
	if len(out.Response.PublishedFileDetails) == 0 {
		return "", fmt.Errorf("%w: %d", ErrNotAMap, workshopID)
	}

	detail := out.Response.PublishedFileDetails[0]
	if detail.ResultCode != 1 || detail.Consumer != 730 {
		return "", fmt.Errorf("%w: %d", ErrNotAMap, workshopID)
	}
	return detail.Title, nil
}

// DownloadWorkshopItem shells out to DepotDownloader to fetch pubfile
// workshopID, then computes its MD5 checksum. The subprocess and its
// argument shape are out of scope for reimplementation; this method only
// invokes and checksums the result.
func (g *Gateway) DownloadWorkshopItem(ctx context.Context, workshopID uint64) (WorkshopAsset, error) {
	now := time.Now()

	g.cacheMu.Lock()
	if entry, ok := g.cache[workshopID]; ok && entry.expiresAt.After(now) {
		g.cacheMu.Unlock()
		return entry.asset, nil
	}
	g.cacheMu.Unlock()

	asset, err := g.downloadWorkshopItem(ctx, workshopID)
	if err != nil {
		return WorkshopAsset{}, err
	}

	if g.cacheTTL > 0 {
		g.cacheMu.Lock()
		g.cache[workshopID] = cacheEntry{asset: asset, expiresAt: now.Add(g.cacheTTL)}
		g.cacheMu.Unlock()
	}

	return asset, nil
}

// downloadWorkshopItem performs the uncached DepotDownloader invocation and
// checksum.
func (g *Gateway) downloadWorkshopItem(ctx context.Context, workshopID uint64) (WorkshopAsset, error) {
	outDir := filepath.Join(g.depotOutputDir, strconv.FormatUint(workshopID, 10))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WorkshopAsset{}, fmt.Errorf("steamgw: prepare output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, g.depotBinaryPath,
		"-app", "730",
		"-pubfile", strconv.FormatUint(workshopID, 10),
		"-dir", outDir,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return WorkshopAsset{}, fmt.Errorf("steamgw: depot downloader failed: %w: %s", err, out)
	}

	mapPath := filepath.Join(outDir, strconv.FormatUint(workshopID, 10)+".vpk")
	checksum, err := md5File(mapPath)
	if err != nil {
		return WorkshopAsset{}, fmt.Errorf("steamgw: checksum workshop asset: %w", err)
	}

	return WorkshopAsset{Path: mapPath, Checksum: checksum}, nil
}

// StartCacheEvictor launches a background sweeper that drops expired
// workshop-download cache entries every interval. Calling it more than once
// on the same Gateway is a no-op.
func (g *Gateway) StartCacheEvictor(ctx context.Context, interval time.Duration) {
	g.evictorStarted.Do(func() {
		sched, err := gocron.NewScheduler()
		if err != nil {
			log.Printf("steamgw: failed to start cache evictor: %v", err)
			return
		}
		g.scheduler = sched

		_, err = sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(g.evictExpiredCacheEntries),
		)
		if err != nil {
			log.Printf("steamgw: failed to register cache evictor job: %v", err)
			return
		}

		sched.Start()

		go func() {
			<-ctx.Done()
			_ = sched.Shutdown()
		}()
	})
}

func (g *Gateway) evictExpiredCacheEntries() {
	now := time.Now()
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	for id, entry := range g.cache {
		if !entry.expiresAt.After(now) {
			delete(g.cache, id)
		}
	}
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
