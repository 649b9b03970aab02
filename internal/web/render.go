package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/router"
	"example.com/farmstand/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"stars": func(n int) string {
		if n < 0 {
			n = 0
		}
		if n > 5 {
			n = 5
		}
		return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
	},
	"seq": func(from, to int) []int {
		var out []int
		for i := from; i <= to; i++ {
			out = append(out, i)
		}
		return out
	},
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("farmstand").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// sectionData is what a page partial receives.
type sectionData struct {
	Props  any
	Failed bool
}

// layoutData is what the layout receives.
type layoutData struct {
	View      router.View
	LoggedIn  bool
	Identity  session.Identity
	CartCount int
	Auth      app.AuthModalState
	Toasts    []app.Toast
	Body      template.HTML
}

// render writes the full page for view and drains the toast queue into it.
func (s *Server) render(w http.ResponseWriter, st *app.State, view router.View) {
	data := layoutData{
		View:      view,
		CartCount: st.Cart.Count(),
		Auth:      st.AuthModal,
	}
	data.Identity, data.LoggedIn = st.Session.Current()

	if sec, ok := view.Active(); ok {
		var body bytes.Buffer
		name := "page-" + string(sec.ID)
		if err := s.tmpl.ExecuteTemplate(&body, name, sectionData{Props: sec.Props, Failed: sec.Failed}); err != nil {
			s.logger.Error("render section failed", "page", sec.ID, "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		data.Body = template.HTML(body.String())
	}
	data.Toasts = st.Toasts.Drain()

	var out bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&out, "layout", data); err != nil {
		s.logger.Error("render layout failed", "page", view.Page, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(out.Bytes())
}
