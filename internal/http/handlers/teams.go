package handlers

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"hdxplane/internal/bootstrap"
	dbpkg "hdxplane/internal/db"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TeamName string `json:"team_name"`
}

// Signup creates a team and its first user, then runs the tenant storage
// bootstrap. Bootstrap failures are logged and counted and do not roll back
// team creation. BootstrapTeam is safe to run again for the team, but this
// handler does not re-run it; a repeated signup with the same email is
// refused with 409.
func Signup(db *gorm.DB, bs *bootstrap.Bootstrapper) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req signupRequest
		if !readJSON(ctx, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("email and password required")
			return
		}
		if req.TeamName == "" {
			req.TeamName = req.Email
		}

		var count int64
		if err := db.Model(&dbpkg.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}
		if count > 0 {
			ctx.SetStatusCode(fasthttp.StatusConflict)
			ctx.SetBodyString("a user with this email already exists")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to hash password")
			return
		}

		team := &dbpkg.Team{ID: uuid.NewString(), Name: req.TeamName}
		if err := db.Create(team).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to create team")
			return
		}
		user := &dbpkg.User{
			ID:           uuid.NewString(),
			TeamID:       team.ID,
			Email:        req.Email,
			PasswordHash: string(hash),
		}
		if err := db.Create(user).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to create user")
			return
		}

		if err := bs.BootstrapTeam(ctx, team.ID); err != nil {
			log.Printf("warning: bootstrap for team %s failed (retriable): %v", team.ID, err)
			if bootstrapErrors != nil {
				bootstrapErrors.Inc()
			}
		} else if teamsBootstrapped != nil {
			teamsBootstrapped.Inc()
		}

		var c fasthttp.Cookie
		c.SetKey("session_user")
		c.SetValue(req.Email)
		c.SetPath("/")
		c.SetHTTPOnly(true)
		ctx.Response.Header.SetCookie(&c)

		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"team": map[string]any{
				"id":         team.ID,
				"name":       team.Name,
				"created_at": team.CreatedAt,
			},
			"user": map[string]any{
				"id":    user.ID,
				"email": user.Email,
			},
		})
	}
}

// GetTeam returns the caller's team with a summary of its ingestion shard.
func GetTeam(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		var team dbpkg.Team
		if err := db.Where("id = ?", user.TeamID).First(&team).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("team not found")
			return
		}

		var active dbpkg.IngestionToken
		assignedShard := ""
		err := db.Where("team_id = ? AND status = ?", team.ID, dbpkg.TokenStatusActive).
			Order("created_at ASC").Limit(1).Find(&active).Error
		if err == nil && active.ID != "" {
			assignedShard = active.AssignedShard
		}

		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"id":             team.ID,
			"name":           team.Name,
			"created_at":     team.CreatedAt.UTC().Format(time.RFC3339),
			"assigned_shard": assignedShard,
		})
	}
}
