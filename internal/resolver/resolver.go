// Package resolver picks the best image and spec-sheet references for a
// catalog item from the candidate URLs carried on the raw record. Selection
// is heuristic and never fails a pipeline item: when no candidate ranks,
// the image falls back to a brand-derived stock path and the spec reference
// stays empty.
package resolver

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// Hints describes one item's candidate assets and the identity fields used
// to rank them.
type Hints struct {
	Manufacturer  string
	PartNumber    string
	ImageURLs     []string
	SpecSheetURLs []string
}

// Result holds the chosen references. Empty fields mean no usable candidate.
type Result struct {
	ImageRef   string
	SpecRef    string
	Confidence float64
}

// Resolver ranks and optionally verifies asset candidates.
type Resolver struct {
	cfg    Config
	client *http.Client
}

// Config tunes resolution behavior.
type Config struct {
	// VendorDomains lists first-party manufacturer domains that outrank
	// third-party image hosts, e.g. "assets.acme.com".
	VendorDomains []string

	// VerifyTimeout bounds the HEAD probe per candidate. Zero disables
	// verification entirely (offline runs).
	VerifyTimeout time.Duration

	// HTTPClient overrides the probe client, mainly for tests.
	HTTPClient *http.Client
}

// New creates a Resolver. With a zero VerifyTimeout candidates are ranked
// but never probed.
func New(cfg Config) *Resolver {
	client := cfg.HTTPClient
	if client == nil && cfg.VerifyTimeout > 0 {
		client = &http.Client{Timeout: cfg.VerifyTimeout}
	}
	return &Resolver{cfg: cfg, client: client}
}

// scored pairs a candidate URL with its heuristic rank.
type scored struct {
	url   string
	score float64
}

// Resolve picks the best image and spec references for the item. It never
// returns an error: unreachable or malformed candidates just lower the
// confidence of the result.
func (r *Resolver) Resolve(ctx context.Context, hints Hints) Result {
	var out Result

	image := r.pick(ctx, hints, hints.ImageURLs, scoreImage)
	switch {
	case image != nil:
		out.ImageRef = image.url
		out.Confidence = image.score
	default:
		// No usable candidate: point at the manufacturer's stock image so
		// the record still renders with something brand-appropriate.
		if ref := brandFallbackImage(hints.Manufacturer); ref != "" {
			out.ImageRef = ref
			out.Confidence = fallbackConfidence
		}
	}

	spec := r.pick(ctx, hints, hints.SpecSheetURLs, scoreSpec)
	if spec != nil {
		out.SpecRef = spec.url
		if out.Confidence == 0 || spec.score < out.Confidence {
			out.Confidence = spec.score
		}
	}

	return out
}

func (r *Resolver) pick(ctx context.Context, hints Hints, candidates []string, score func(u *url.URL, hints Hints, vendor bool) float64) *scored {
	ranked := make([]scored, 0, len(candidates))
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		ranked = append(ranked, scored{
			url:   raw,
			score: score(u, hints, r.isVendorDomain(u.Host, hints.Manufacturer)),
		})
	}
	if len(ranked) == 0 {
		return nil
	}

	// Stable ordering: score descending, original order breaks ties.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if r.client == nil {
		return &ranked[0]
	}

	// Probe in rank order and take the first reachable candidate.
	for i := range ranked {
		if r.verify(ctx, ranked[i].url) {
			return &ranked[i]
		}
		zap.L().Debug("asset candidate unreachable",
			zap.String("url", ranked[i].url),
			zap.String("part_number", hints.PartNumber),
		)
	}

	// Everything failed the probe: fall back to the top-ranked candidate
	// at reduced confidence rather than dropping the asset outright.
	top := ranked[0]
	top.score *= 0.5
	return &top
}

// fallbackConfidence marks a brand-derived stock reference: well below any
// ranked candidate, but not zero.
const fallbackConfidence = 0.1

// brandFallbackImage builds the stock image path for a manufacturer,
// e.g. "Acme Corp" -> "/images/manufacturers/acme-corp.jpg".
func brandFallbackImage(manufacturer string) string {
	slug := model.NormalizeKeyPart(manufacturer)
	slug = strings.ReplaceAll(slug, " ", "-")
	if slug == "" {
		return ""
	}
	return "/images/manufacturers/" + slug + ".jpg"
}

// isVendorDomain reports whether host belongs to a configured first-party
// domain or embeds the manufacturer name.
func (r *Resolver) isVendorDomain(host, manufacturer string) bool {
	host = strings.ToLower(host)
	for _, d := range r.cfg.VendorDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	brand := model.NormalizeKeyPart(manufacturer)
	brand = strings.ReplaceAll(brand, " ", "")
	return brand != "" && strings.Contains(strings.ReplaceAll(host, "-", ""), brand)
}

func scoreImage(u *url.URL, hints Hints, vendor bool) float64 {
	score := 0.3
	if vendor {
		score += 0.35
	}

	lower := strings.ToLower(u.Path + "?" + u.RawQuery)
	// Clean product shots are usually tagged by the asset pipeline.
	if strings.Contains(lower, "white-bg") || strings.Contains(lower, "white_background") ||
		strings.Contains(lower, "whitebackground") || strings.Contains(lower, "white-background") {
		score += 0.2
	}
	if part := model.NormalizeKeyPart(hints.PartNumber); part != "" &&
		strings.Contains(strings.ToLower(u.Path), strings.ReplaceAll(part, " ", "")) {
		score += 0.1
	}
	switch {
	case strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".webp"):
		score += 0.05
	case strings.Contains(lower, "thumb"), strings.Contains(lower, "icon"):
		score -= 0.15
	}

	return clamp01(score)
}

func scoreSpec(u *url.URL, hints Hints, vendor bool) float64 {
	score := 0.3
	if vendor {
		score += 0.35
	}

	lower := strings.ToLower(u.Path)
	if strings.HasSuffix(lower, ".pdf") {
		score += 0.2
	}
	if strings.Contains(lower, "datasheet") || strings.Contains(lower, "spec") {
		score += 0.1
	}
	if part := model.NormalizeKeyPart(hints.PartNumber); part != "" &&
		strings.Contains(lower, strings.ReplaceAll(part, " ", "")) {
		score += 0.05
	}

	return clamp01(score)
}

// verify issues a HEAD request and accepts any 2xx/3xx response.
func (r *Resolver) verify(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
