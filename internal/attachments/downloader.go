package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/util"
)

const maxRedirects = 10

// Downloader ensures an opportunity's source files are locally available
// before analysis. Each item's failure is isolated; one bad attachment never
// aborts the batch.
type Downloader struct {
	Repo    Repo
	Ledger  *jobs.Ledger
	BaseDir string
	HTTP    *http.Client
}

// EnsureLocal downloads every not-yet-downloaded attachment for the
// opportunity, optionally restricted to the given attachment ids. A local
// copy already present on disk wins over the downloaded flag, since flags
// can drift. Returns the attachments now available locally plus counts.
func (d *Downloader) EnsureLocal(ctx context.Context, opportunityID string, filter []string) (Result, error) {
	atts, err := d.Repo.ListByOpportunity(ctx, opportunityID)
	if err != nil {
		return Result{}, fmt.Errorf("list attachments: %w", err)
	}

	wanted := make(map[string]bool, len(filter))
	for _, id := range filter {
		wanted[id] = true
	}

	batch, batchErr := d.startBatch(ctx, opportunityID)

	var result Result
	for _, att := range atts {
		if len(wanted) > 0 && !wanted[att.ID] {
			continue
		}
		if att.SourceURL == "" {
			continue
		}

		if path, ok := d.localCopy(att); ok {
			att.LocalPath = path
			result.Available = append(result.Available, att)
			result.Skipped++
			continue
		}

		localPath, size, mime, err := d.fetch(ctx, att)
		if err != nil {
			result.Failed++
			d.logItem(ctx, batch, batchErr, "error", att, err.Error())
			continue
		}
		if err := d.Repo.MarkDownloaded(ctx, att.ID, localPath, size, mime); err != nil {
			result.Failed++
			d.logItem(ctx, batch, batchErr, "error", att, "mark downloaded: "+err.Error())
			continue
		}
		att.LocalPath = localPath
		att.Downloaded = true
		att.SizeBytes = size
		result.Available = append(result.Available, att)
		result.Downloaded++
		d.logItem(ctx, batch, batchErr, "info", att, fmt.Sprintf("downloaded %d bytes", size))
	}

	d.finishBatch(ctx, batch, batchErr, result)
	return result, nil
}

// localCopy reports whether the attachment already has a usable file on disk.
func (d *Downloader) localCopy(att Attachment) (string, bool) {
	if att.LocalPath != "" {
		if info, err := os.Stat(att.LocalPath); err == nil && !info.IsDir() {
			return att.LocalPath, true
		}
	}
	path := d.targetPath(att)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	return "", false
}

// fetch downloads the source URL following redirects by hand, so an explicit
// 303 See-Other can be validated to point somewhere new instead of being
// retried at the original URL.
func (d *Downloader) fetch(ctx context.Context, att Attachment) (string, int64, string, error) {
	client := d.HTTP
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	// Redirects handled below.
	noRedirect := *client
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	current := att.SourceURL
	for hop := 0; hop <= maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return "", 0, "", fmt.Errorf("build request: %w", err)
		}
		resp, err := noRedirect.Do(req)
		if err != nil {
			return "", 0, "", fmt.Errorf("fetch %s: %w", current, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			defer resp.Body.Close()
			return d.saveBody(att, resp)
		case http.StatusSeeOther:
			next, err := redirectTarget(resp, current)
			resp.Body.Close()
			if err != nil {
				return "", 0, "", err
			}
			if next == current {
				return "", 0, "", fmt.Errorf("see-other redirect points back at %s", current)
			}
			current = next
		case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			next, err := redirectTarget(resp, current)
			resp.Body.Close()
			if err != nil {
				return "", 0, "", err
			}
			current = next
		default:
			resp.Body.Close()
			return "", 0, "", fmt.Errorf("fetch %s: http status %d", current, resp.StatusCode)
		}
	}
	return "", 0, "", errors.New("too many redirects")
}

func redirectTarget(resp *http.Response, current string) (string, error) {
	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if loc == "" {
		return "", fmt.Errorf("redirect from %s missing location header", current)
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	target, err := base.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("bad redirect location %q: %w", loc, err)
	}
	return target.String(), nil
}

func (d *Downloader) saveBody(att Attachment, resp *http.Response) (string, int64, string, error) {
	path := d.targetPath(att)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, "", fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, resp.Body)
	if err != nil {
		os.Remove(path)
		return "", 0, "", fmt.Errorf("write body: %w", err)
	}
	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	return path, size, mime, nil
}

func (d *Downloader) targetPath(att Attachment) string {
	name := filepath.Base(att.SourceURL)
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	sanitized, err := util.SanitizeFileName(name)
	if err != nil || sanitized == "" {
		sanitized = att.ID
	}
	return filepath.Join(d.BaseDir, att.OpportunityID, att.ID+"_"+sanitized)
}

// startBatch opens a download job so the run shows up in the ledger. Ledger
// problems degrade to plain telemetry rather than blocking acquisition.
func (d *Downloader) startBatch(ctx context.Context, opportunityID string) (jobs.Job, error) {
	if d.Ledger == nil {
		return jobs.Job{}, errors.New("no ledger")
	}
	batch, err := d.Ledger.Create(ctx, jobs.KindAttachmentDownload, opportunityID, jobs.Options{})
	if err != nil {
		return jobs.Job{}, err
	}
	if err := d.Ledger.Transition(ctx, &batch, jobs.StatusRunning, nil); err != nil {
		return jobs.Job{}, err
	}
	return batch, nil
}

func (d *Downloader) logItem(ctx context.Context, batch jobs.Job, batchErr error, level string, att Attachment, msg string) {
	if batchErr != nil {
		return
	}
	_ = d.Ledger.AppendLog(ctx, batch, level, "download", att.SourceURL+": "+msg)
}

func (d *Downloader) finishBatch(ctx context.Context, batch jobs.Job, batchErr error, result Result) {
	if batchErr != nil {
		return
	}
	counts := map[string]any{
		"attempted":  result.Downloaded + result.Failed,
		"downloaded": result.Downloaded,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	}
	_ = d.Ledger.Repo.UpdateResult(ctx, batch.ID, counts, nil, "", "")
	if result.Failed > 0 && result.Downloaded == 0 && result.Skipped == 0 {
		_ = d.Ledger.Transition(ctx, &batch, jobs.StatusFailed, fmt.Errorf("all %d downloads failed", result.Failed))
		return
	}
	_ = d.Ledger.Transition(ctx, &batch, jobs.StatusCompleted, nil)
}
