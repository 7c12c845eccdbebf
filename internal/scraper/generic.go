package scraper

import (
	"context"
	"strings"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"

	"github.com/PuerkitoBio/goquery"
)

const genericCap = 300

var (
	genericTitleWords = []string{
		"apply", "senior", "junior", "engineer", "developer", "manager", "specialist",
		"consultant", "analyst", "ingenieur", "technicien", "stage", "alternance",
		"projet", "qualite", "commercial", "ressources",
	}
	genericHrefWords   = []string{"job", "career", "vacancy", "position", "role", "offre", "emploi", "recrutement"}
	genericListingHref = []string{"search", "results", "filter", "category", "tag", "ma-selection", "liste-toutes-offres", "flux-rss"}
	genericATSHosts    = []string{"workable.com", "greenhouse.io", "lever.co", "ashbyhq.com", "bamboohr.com", "bullhorn", "recruitee.com"}
	genericExcluded    = []string{
		"login", "signin", "signup", "register", "privacy", "terms", "about", "contact",
		"blog", "news", "events", "cookie", "google", "youtube", "facebook", "twitter",
		"linkedin", "instagram", "help", "support",
	}
	genericDescription = []string{
		"[itemprop='description']", ".job-description", "#job-description",
		".offer-description", "#offer-description", "article", "main",
	}
)

// boilerplateSiteName is a title suffix some French boards use instead of
// their name.
const boilerplateSiteName = "site d'offres d'emploi"

// GenericStrategy is the fallback: it renders the page, keeps links that
// look like postings and enriches them from their detail pages.
type GenericStrategy struct {
	opts     Options
	detailer detailer
}

func NewGenericStrategy(opts Options) *GenericStrategy {
	opts = opts.withDefaults()
	return &GenericStrategy{opts: opts, detailer: newDetailer(opts)}
}

func (s *GenericStrategy) Name() string { return "Generic" }

func (s *GenericStrategy) CanHandle(string) bool { return true }

func (s *GenericStrategy) Extract(ctx context.Context, sess browser.Session, url string, emit EmitFunc) ([]harvest.Job, error) {
	if sess == nil {
		return nil, browser.ErrClosed
	}
	page, err := sess.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}

	site := siteName(doc, page.Title, url)
	jobs := genericLinks(doc, pickNonEmpty(page.URL, url), url, site)
	s.opts.Logger.Printf("scraper strategy=generic url=%s site=%q candidates=%d", url, site, len(jobs))
	emitSafe(emit, jobs, map[string]any{"pages": 1, "site": site})

	enriched, failed := s.detailer.enrich(ctx, jobs, genericDescribe, emit)
	if failed > 0 {
		s.opts.Logger.Printf("scraper strategy=generic url=%s detail_failures=%d", url, failed)
	}
	return enriched, ctx.Err()
}

// siteName tries og:site_name, application-name, the title suffix and
// finally the domain.
func siteName(doc *goquery.Document, title, url string) string {
	usable := func(s string) bool {
		return s != "" && !strings.Contains(strings.ToLower(s), boilerplateSiteName)
	}
	if v, ok := doc.Find(`meta[property='og:site_name']`).Attr("content"); ok && usable(strings.TrimSpace(v)) {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[name='application-name']`).Attr("content"); ok && usable(strings.TrimSpace(v)) {
		return strings.TrimSpace(v)
	}
	if title == "" {
		title = doc.Find("title").First().Text()
	}
	for _, sep := range []string{" - ", " | "} {
		if i := strings.LastIndex(title, sep); i >= 0 {
			if cand := strings.TrimSpace(title[i+len(sep):]); usable(cand) {
				return cand
			}
			break
		}
	}
	return DomainLabel(url)
}

func genericLinks(doc *goquery.Document, base, source, site string) []harvest.Job {
	seen := make(map[string]struct{})
	jobs := make([]harvest.Job, 0)
	self := strings.TrimRight(source, "/")

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(jobs) >= genericCap {
			return false
		}
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if len(href) < 2 {
			return true
		}
		if strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "#/") && !strings.HasPrefix(href, "#!/") {
			return true
		}
		link := absoluteURL(base, href)
		if link == "" || strings.TrimRight(link, "/") == self {
			return true
		}
		if _, ok := seen[link]; ok {
			return true
		}
		text := collapseSpace(a.Text())
		if !looksLikeJob(text, href) || len(text) < 3 {
			return true
		}
		seen[link] = struct{}{}
		jobs = append(jobs, harvest.Job{
			Title:    truncate(text, 100),
			Company:  site,
			Location: "Unknown",
			Link:     link,
			Platform: site,
		})
		return true
	})
	return jobs
}

func looksLikeJob(text, href string) bool {
	t := strings.ToLower(text)
	h := strings.ToLower(href)

	if containsAny(h, genericExcluded) {
		return false
	}
	if containsAny(t, genericTitleWords) {
		return true
	}
	if containsAny(h, genericHrefWords) && !containsAny(h, genericListingHref) {
		return true
	}
	return containsAny(h, genericATSHosts) && len(text) > 3
}

func genericDescribe(doc *goquery.Document) string {
	txt := firstText(doc, genericDescription...)
	if len(txt) > 50 {
		return txt
	}
	if v, ok := doc.Find(`meta[name='description']`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return txt
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
