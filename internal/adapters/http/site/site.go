// Package site renders the public HTML pages served next to the API.
package site

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

// Error constants.
var (
	ErrRender = errors.New("site render failed")
)

// PublicURL is the game address used in share posts.
const PublicURL = "https://ceo-or-cto.com"

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// RankingsSource yields the ranking lists.
type RankingsSource interface {
	Rankings(ctx context.Context, limit int) (model.Rankings, error)
}

// Handler serves the HTML pages.
type Handler struct {
	source  RankingsSource
	limit   int
	printer *message.Printer
	logger  logger.Logger
}

// NewHandler creates a page handler listing limit profiles per column.
func NewHandler(source RankingsSource, limit int) *Handler {
	return &Handler{
		source:  source,
		limit:   limit,
		printer: message.NewPrinter(language.English),
		logger:  logger.Named("site"),
	}
}

// Register attaches the page routes to mux.
func Register(_ context.Context, mux *http.ServeMux, h *Handler) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/rankings", h.HandleRankings)
}

type rankingsPage struct {
	Unavailable bool
	Columns     []column
}

type column struct {
	Title string
	Rows  []row
}

type row struct {
	Rank     int
	Name     string
	Subtitle string
	Success  string
	Total    string
	Ratio    string
	ShareURL string
}

// HandleRankings handles GET /rankings.
func (h *Handler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	var page rankingsPage
	status := http.StatusOK
	rankings, err := h.source.Rankings(r.Context(), h.limit)
	if err != nil {
		h.logger.Error(r.Context(), "rankings unavailable", logger.Error(err))
		page.Unavailable = true
		status = http.StatusServiceUnavailable
	} else if rankings.Total > 0 {
		page.Columns = []column{
			{Title: "The most CTOs", Rows: h.rows(rankings.Top)},
			{Title: "The least CTOs", Rows: h.rows(rankings.Bottom)},
		}
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "rankings.html", page); err != nil {
		h.logger.Error(r.Context(), "render rankings", logger.Error(err))
		http.Error(w, fmt.Errorf("%w: %w", ErrRender, err).Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) rows(ranked []model.RankedProfile) []row {
	out := make([]row, 0, len(ranked))
	for _, rp := range ranked {
		out = append(out, row{
			Rank:     rp.Rank,
			Name:     rp.Profile.Name,
			Subtitle: subtitle(rp.Profile),
			Success:  h.printer.Sprintf("%d", rp.Profile.SuccessCount),
			Total:    h.printer.Sprintf("%d", rp.Profile.TotalCount),
			Ratio:    FormatRatio(rp.Ratio),
			ShareURL: ShareURL(rp.Profile, rp.Rank),
		})
	}
	return out
}

func subtitle(p model.Profile) string {
	switch {
	case p.Role != "" && p.Company != "":
		return p.Role + " - " + p.Company
	case p.Company != "":
		return p.Company
	default:
		return p.Role
	}
}

// FormatRatio renders a ratio as a percentage with one decimal.
func FormatRatio(ratio float64) string {
	if ratio <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// ShareURL builds a LinkedIn post that tags the profile with its rank.
func ShareURL(p model.Profile, rank int) string {
	lines := []string{
		fmt.Sprintf("@%s you're %dth on %s!", p.ID, rank, PublicURL),
		" ",
		"Linkedin: " + p.LinkedInProfileURL,
	}
	return "https://www.linkedin.com/feed/?shareActive&mini=true&text=" + url.QueryEscape(strings.Join(lines, "\n"))
}
