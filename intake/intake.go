// Package intake implements the HTTP endpoint that turns a POST into a
// well-formed Job and pushes it onto the convert queue. It is deliberately
// stateless: every request is handled independently, taking no lock beyond
// the queue's own.
package intake

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/events"
	"github.com/alephprint/gsprintd/job"
	"github.com/alephprint/gsprintd/pdfinfo"
	"github.com/alephprint/gsprintd/queue"
)

// Notifier receives a JobEvent for the "enqueued" transition.
type Notifier func(events.JobEvent)

// Handler is the HTTP handler for the conversion endpoint.
type Handler struct {
	queue    *queue.Queue
	filesDir string
	notify   Notifier
	log      zerolog.Logger
}

// New builds a Handler. notify may be nil.
func New(q *queue.Queue, filesDir string, notify Notifier, log zerolog.Logger) *Handler {
	if notify == nil {
		notify = func(events.JobEvent) {}
	}
	return &Handler{
		queue:    q,
		filesDir: filesDir,
		notify:   notify,
		log:      log.With().Str("component", "intake").Logger(),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		drainBody(r)
		w.Header().Set("Allow", http.MethodPost)
		respondPlain(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST.\n")
		return
	}

	pairs, err := parseQuery(r.URL.RawQuery)
	if err != nil {
		drainBody(r)
		respondPlain(w, http.StatusBadRequest, "Malformed query string\n")
		return
	}

	var device, baseName, printersRaw string
	var extraArgs []string
	for _, kv := range pairs {
		k, v := kv[0], kv[1]
		switch {
		case strings.EqualFold(k, "print"):
			if printersRaw != "" && v != "" {
				printersRaw += ","
			}
			printersRaw += v
		case strings.EqualFold(k, "sOutputFile"):
			baseName = v
		case strings.EqualFold(k, "sDEVICE"):
			device = v
		default:
			if v == "" {
				extraArgs = append(extraArgs, "-"+k)
			} else {
				extraArgs = append(extraArgs, "-"+k+"="+v)
			}
		}
	}

	if device == "" {
		drainBody(r)
		respondPlain(w, http.StatusBadRequest, "Missing device name\n")
		return
	}
	if baseName == "" {
		drainBody(r)
		respondPlain(w, http.StatusBadRequest, "Missing file name\n")
		return
	}
	if _, ok := job.FormatForDevice(device); !ok {
		drainBody(r)
		respondPlain(w, http.StatusBadRequest, "Extension not supported\n")
		return
	}
	if !hasBody(r) {
		drainBody(r)
		respondPlain(w, http.StatusBadRequest, "Missing PDF body\n")
		return
	}

	printers := job.ParsePrinters(printersRaw)

	if err := os.MkdirAll(h.filesDir, 0o755); err != nil {
		drainBody(r)
		respondPlain(w, http.StatusInternalServerError, "Failed to prepare workspace: "+err.Error()+"\n")
		return
	}

	j, err := job.New(h.filesDir, baseName, device, extraArgs, printers)
	if err != nil {
		drainBody(r)
		respondPlain(w, http.StatusBadRequest, err.Error()+"\n")
		return
	}

	if err := writeBody(j.InputPath, r.Body); err != nil {
		respondPlain(w, http.StatusInternalServerError, "Failed to store PDF: "+err.Error()+"\n")
		return
	}

	if !h.queue.TryEnqueue(j) {
		h.log.Warn().Str("job_id", j.ID).Msg("convert queue full, rejecting request")
		respondPlain(w, http.StatusServiceUnavailable, "Queue full, retry\n")
		return
	}

	h.log.Info().Str("job_id", j.ID).Str("device", device).Int("printers", len(printers)).Msg("job enqueued")
	h.notify(events.JobEvent{
		JobID:      j.ID,
		Status:     string(job.StatusEnqueued),
		Format:     j.FormatLabel,
		Printers:   len(printers),
		OccurredAt: time.Now(),
	})

	go h.logPageCount(j)

	respondPlain(w, http.StatusOK, "OK enqueued "+strconv.Itoa(len(printers))+" job(s)\n")
}

func (h *Handler) logPageCount(j *job.Job) {
	n, err := pdfinfo.PageCount(j.InputPath)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", j.ID).Msg("advisory PDF introspection failed, ignoring")
		return
	}
	h.log.Debug().Str("job_id", j.ID).Int("pages", n).Msg("advisory PDF page count")
}

func hasBody(r *http.Request) bool {
	// net/http moves Transfer-Encoding out of r.Header into r.TransferEncoding.
	return r.ContentLength > 0 || (len(r.TransferEncoding) > 0 && r.TransferEncoding[0] == "chunked")
}

func drainBody(r *http.Request) {
	if r.Body != nil {
		io.Copy(io.Discard, r.Body)
		r.Body.Close()
	}
}

func writeBody(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	written, err := io.Copy(f, body)
	if err != nil {
		return err
	}
	if written == 0 {
		return os.ErrInvalid
	}
	return nil
}

func respondPlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// parseQuery parses a raw query string into ordered key/value pairs,
// preserving both duplicate keys and their original order -- unlike
// url.Values, which collapses into an unordered map. Order matters here
// because extra Ghostscript args are appended to gsArgs in the order they
// appeared in the request.
func parseQuery(raw string) ([][2]string, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, "&")
	out := make([][2]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		var rawKey, rawVal string
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			rawKey, rawVal = p[:idx], p[idx+1:]
		} else {
			rawKey = p
		}
		k, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, err
		}
		v, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}
