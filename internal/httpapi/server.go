// Package httpapi is the thin HTTP adapter over the control plane.
//
// Routing stays deliberately dumb: every handler parses, delegates to the
// owning component, and maps the typed error to a status code. No invariant
// is enforced here; the components reject on their own.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giftkeep/giftkeep/internal/auth"
	"github.com/giftkeep/giftkeep/internal/ledger"
	"github.com/giftkeep/giftkeep/internal/notify"
	"github.com/giftkeep/giftkeep/internal/purchase"
	"github.com/giftkeep/giftkeep/internal/restore"
	"github.com/giftkeep/giftkeep/internal/safety"
	"github.com/giftkeep/giftkeep/internal/snapshot"
	"github.com/giftkeep/giftkeep/internal/store"
)

// ConfirmHeader must carry ConfirmValue on the destructive endpoints
// (raw download, restore). It is a second, explicit signal distinct from
// normal auth, so a stray click or replayed request cannot trigger them.
const (
	ConfirmHeader = "X-Giftkeep-Confirm"
	ConfirmValue  = "yes"
)

var (
	restoresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftkeep_restores_total",
		Help: "Committed snapshot restores.",
	})
	switchFlipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftkeep_switch_flips_total",
		Help: "Emergency stop transitions by direction.",
	}, []string{"direction"})
	purchasesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftkeep_purchases_created_total",
		Help: "Purchases admitted by the gate.",
	})
)

// Server wires the control plane behind HTTP.
type Server struct {
	store    *store.Store
	ledger   *ledger.Ledger
	exporter *snapshot.Exporter
	engine   *restore.Engine
	sw       *safety.Switch
	gate     *purchase.Gate
	notifier *notify.Notifier
	tokens   *auth.TokenParser
	validate *validator.Validate
	log      *slog.Logger
}

// New assembles a Server. log may be nil for slog's default.
func New(
	s *store.Store,
	l *ledger.Ledger,
	exporter *snapshot.Exporter,
	engine *restore.Engine,
	sw *safety.Switch,
	gate *purchase.Gate,
	notifier *notify.Notifier,
	tokens *auth.TokenParser,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:    s,
		ledger:   l,
		exporter: exporter,
		engine:   engine,
		sw:       sw,
		gate:     gate,
		notifier: notifier,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin", s.authMiddleware(), s.adminOnly())
	{
		admin.GET("/export", s.handleExport)
		admin.GET("/download", s.requireConfirm(), s.handleDownload)
		admin.POST("/restore", s.requireConfirm(), s.handleRestore)
		admin.POST("/switch", s.handleSwitch)
		admin.POST("/purchases", s.handleCreatePurchase)
		admin.GET("/ledger", s.handleLedgerQuery)
	}

	return r
}
