package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/p2e-inferno/teerex-sub003/internal/allowlist"
	"github.com/p2e-inferno/teerex-sub003/internal/attendance"
	"github.com/p2e-inferno/teerex-sub003/internal/auth"
	"github.com/p2e-inferno/teerex-sub003/internal/challenge"
	"github.com/p2e-inferno/teerex-sub003/internal/config"
	indexersvc "github.com/p2e-inferno/teerex-sub003/internal/indexer/service"
	"github.com/p2e-inferno/teerex-sub003/internal/relay"
	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type Deps struct {
	Config     config.Config
	Auth       *auth.Service
	Repo       *store.Repository
	Reader     *indexersvc.Reader
	Relay      *relay.Handler
	Attendance *attendance.Service
	Challenge  *challenge.Service
	AllowList  *allowlist.Service
	Ledger     *reputation.Ledger
	Hub        *AttestationHub
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authH := newAuthHandler(d.Auth)
	eventH := newEventHandler(d.Repo)
	attH := newAttendanceHandler(d.Attendance)
	chalH := newChallengeHandler(d.Challenge)
	repH := newReputationHandler(d.Ledger)
	idxH := newIndexerHandler(d.Reader, d.Config.Chain)
	allowH := newAllowListHandler(d.AllowList)

	r.GET("/auth/nonce", authH.Nonce)
	r.POST("/auth/login", authH.Login)
	r.GET("/ws/attestations", d.Hub.ServeWS)

	api := r.Group("/api/v1")

	// Public reads.
	api.GET("/events", eventH.ListEvents)
	api.GET("/events/:id", eventH.GetEvent)
	api.GET("/events/:id/attestations", idxH.ListByEvent)
	api.GET("/attestations/status", idxH.Status)
	api.GET("/attestations/:uid", idxH.Get)
	api.GET("/attestations/:uid/votes", chalH.Tally)
	api.GET("/attestations/:uid/challenges", chalH.List)
	api.GET("/reputation/:address", repH.Score)
	api.GET("/relay/service-address", d.Relay.ServiceAddress)

	guard := auth.JWTMiddleware(d.Auth)
	user := api.Group("", guard)
	{
		user.GET("/me", authH.Me)

		user.GET("/events/:id/attendance", attH.State)
		user.POST("/attendance/going", attH.DeclareGoing)
		user.POST("/attendance/confirm", attH.ConfirmAttendance)
		user.POST("/attendance/revoke", attH.Revoke)

		user.POST("/challenges", chalH.Submit)
		user.POST("/attestations/:uid/votes", chalH.Vote)

		user.POST("/events/:id/allowlist/requests", allowH.Request)

		user.POST("/relay/attest-by-delegation", d.Relay.AttestByDelegation)
		user.POST("/relay/revoke-by-delegation", d.Relay.RevokeByDelegation)
	}

	organizer := api.Group("", guard, auth.RequireOrganizer())
	{
		organizer.POST("/events", eventH.CreateEvent)
		organizer.PATCH("/events/:id", eventH.UpdateEvent)

		organizer.GET("/events/:id/allowlist", allowH.Entries)
		organizer.POST("/events/:id/allowlist", allowH.Add)
		organizer.DELETE("/events/:id/allowlist/:address", allowH.Remove)
		organizer.GET("/events/:id/allowlist/requests", allowH.ListRequests)
		organizer.POST("/allowlist/requests/:requestId/approve", allowH.Approve)
		organizer.POST("/allowlist/requests/:requestId/reject", allowH.Reject)

		organizer.POST("/relay/remove-service-manager", d.Relay.RemoveServiceManager)
	}

	return r
}
