package scraper

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"job-harvester/internal/domain/harvest"

	"github.com/PuerkitoBio/goquery"
)

// describeFunc pulls a description out of a job's detail page.
type describeFunc func(doc *goquery.Document) string

type detailer struct {
	client  *http.Client
	workers int
	rps     int
	logger  *log.Logger
}

func newDetailer(o Options) detailer {
	return detailer{client: o.Client, workers: o.DetailWorkers, rps: o.DetailRPS, logger: o.Logger}
}

// enrich fetches every job that has a link but no description, emitting each
// job as soon as its description lands. Fetches finish in any order. It
// returns the enriched copy and the number of failed fetches.
func (d detailer) enrich(ctx context.Context, jobs []harvest.Job, describe describeFunc, emit EmitFunc) ([]harvest.Job, int) {
	out := make([]harvest.Job, len(jobs))
	copy(out, jobs)
	if len(out) == 0 {
		return out, 0
	}

	pool := NewWorkerPool(d.workers, d.workers*2)
	pool.SetRateLimit(d.rps)
	outcomes := pool.Run(ctx)

	var mu sync.Mutex
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		defer pool.Close()
		for i := range out {
			if out[i].Description != "" || out[i].Link == "" {
				continue
			}
			i := i
			link := out[i].Link
			ok := pool.Submit(ctx, link, func(ctx context.Context) error {
				body, err := httpGetWithRetry(ctx, d.client, link, 2)
				if err != nil {
					return err
				}
				doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
				if err != nil {
					return err
				}
				desc := strings.TrimSpace(describe(doc))
				if desc == "" {
					return nil
				}
				mu.Lock()
				out[i].Description = desc
				job := out[i]
				mu.Unlock()
				emitSafe(emit, []harvest.Job{job}, nil)
				return nil
			})
			if !ok {
				return
			}
		}
	}()

	failed := 0
	for o := range outcomes {
		if o.Err != nil {
			failed++
			d.logger.Printf("scraper detail_fetch url=%s err=%v", o.Key, o.Err)
		}
	}
	<-submitted
	return out, failed
}

// firstText returns the trimmed text of the first selector that matches
// something non-empty.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if txt := strings.TrimSpace(doc.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}
