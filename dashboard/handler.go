package dashboard

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/notification"
	"github.com/rileyseaburg/quantum-fox/order"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("page.html").Funcs(template.FuncMap{
	"money": notification.FormatMoney,
	"price": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"deref": func(v *float64) float64 { return *v },
	"priceInput": func(v float64) string {
		if v <= 0 {
			return ""
		}
		return fmt.Sprintf("%.2f", v)
	},
}).ParseFS(templateFS, "templates/page.html"))

// apiRequest is the JSON body of POST /api/dashboard
type apiRequest struct {
	Symbol     string        `json:"symbol"`
	Period     string        `json:"period"`
	Interval   string        `json:"interval"`
	Env        string        `json:"env"`
	APIKey     string        `json:"api_key"`
	APISecret  string        `json:"api_secret"`
	Order      order.Request `json:"order"`
	Token      string        `json:"token"`
	PlaceOrder bool          `json:"place_order"`
}

// Handler serves the dashboard page and its JSON rendition
type Handler struct {
	renderer       *Renderer
	allowedOrigins []string
}

// NewHandler creates a handler around renderer. allowedOrigins are the
// cross-origin callers of the JSON API; the page's own origin is always
// allowed.
func NewHandler(renderer *Renderer, allowedOrigins ...string) *Handler {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return &Handler{renderer: renderer, allowedOrigins: origins}
}

// RegisterRoutes registers the dashboard routes with the provided HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handlePage)
	mux.HandleFunc("/api/dashboard", h.corsMiddleware(h.handleAPI))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

func (h *Handler) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(h.allowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// trustedOrigin reports whether r may place orders: it comes from the
// dashboard itself, an allowed origin, or a non-browser client.
func (h *Handler) trustedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin != "" && slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host)
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	log.WithFields(log.Fields{
		"origin":         r.Header.Get("Origin"),
		"sec_fetch_site": r.Header.Get("Sec-Fetch-Site"),
		"path":           r.URL.Path,
	}).Warn("cross-site order rejected")
	http.Error(w, "Forbidden", http.StatusForbidden)
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	in := ParseInputs(r.Form)
	if r.Method != http.MethodPost {
		// orders are only placed from a form post
		in.PlaceOrder = false
	}
	if in.PlaceOrder && !h.trustedOrigin(r) {
		h.rejectOrder(w, r)
		return
	}

	page := h.renderer.Render(r.Context(), in)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, page); err != nil {
		log.WithError(err).Error("failed to render page")
	}
}

func (h *Handler) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	var req apiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.PlaceOrder && !h.trustedOrigin(r) {
		h.rejectOrder(w, r)
		return
	}

	in := req.inputs()
	page := h.renderer.Render(r.Context(), in)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(page); err != nil {
		log.WithError(err).Error("failed to encode page")
	}
}

func (req apiRequest) inputs() Inputs {
	in := DefaultInputs()
	if req.Symbol != "" {
		in.Symbol = req.Symbol
	}
	in.Symbol = normalizeSymbol(in.Symbol)
	if req.Period != "" {
		in.Period = req.Period
	}
	if req.Interval != "" {
		in.Interval = req.Interval
	}
	if env, err := broker.ParseEnvironment(req.Env); err == nil {
		in.Environment = env
	}
	in.Credentials = broker.Credentials{APIKey: req.APIKey, APISecret: req.APISecret}

	in.Order = req.Order
	in.Order.Symbol = in.Symbol
	if in.Order.Side == "" {
		in.Order.Side = order.Buy
	}
	if in.Order.Type == "" {
		in.Order.Type = order.Market
	}
	in.Token = req.Token
	in.PlaceOrder = req.PlaceOrder
	return in
}
