package handlers

import (
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "hdxplane/internal/db"
	"hdxplane/internal/registry"
	"hdxplane/internal/shard"
)

type tokenView struct {
	ID            string     `json:"id"`
	TokenPrefix   string     `json:"token_prefix"`
	Status        string     `json:"status"`
	AssignedShard string     `json:"assigned_shard"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

func viewOf(t *dbpkg.IngestionToken) tokenView {
	return tokenView{
		ID:            t.ID,
		TokenPrefix:   t.TokenPrefix,
		Status:        t.Status,
		AssignedShard: t.AssignedShard,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
		LastUsedAt:    t.LastUsedAt,
		RevokedAt:     t.RevokedAt,
	}
}

type issuedResponse struct {
	Token       string    `json:"token"`
	TokenRecord tokenView `json:"token_record"`
}

func ListTokens(reg *registry.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		tokens, err := reg.List(ctx, user.TeamID)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to list ingestion tokens")
			return
		}
		views := make([]tokenView, 0, len(tokens))
		for i := range tokens {
			views = append(views, viewOf(&tokens[i]))
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"data": views})
	}
}

func CreateToken(reg *registry.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		var req struct {
			Description string `json:"description"`
		}
		if !readJSON(ctx, &req) {
			return
		}

		issued, err := reg.Create(ctx, user.TeamID, req.Description)
		if errors.Is(err, shard.ErrExhausted) {
			ctx.SetStatusCode(fasthttp.StatusConflict)
			ctx.SetBodyString("all ingestion shards are occupied; raise SHARD_COUNT or revoke an unused token")
			return
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to create ingestion token")
			return
		}
		if tokensIssued != nil {
			tokensIssued.Inc()
		}

		// The plaintext token leaves the control plane exactly once, here.
		writeJSON(ctx, fasthttp.StatusOK, issuedResponse{
			Token:       issued.Token,
			TokenRecord: viewOf(&issued.Record),
		})
	}
}

func RotateToken(reg *registry.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		tokenID, _ := ctx.UserValue("id").(string)
		if tokenID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("token id required")
			return
		}

		issued, err := reg.Rotate(ctx, user.TeamID, tokenID)
		if errors.Is(err, registry.ErrNotFound) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("ingestion token not found")
			return
		}
		if errors.Is(err, shard.ErrExhausted) {
			ctx.SetStatusCode(fasthttp.StatusConflict)
			ctx.SetBodyString("all ingestion shards are occupied")
			return
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to rotate ingestion token")
			return
		}
		if tokensRotated != nil {
			tokensRotated.Inc()
		}

		writeJSON(ctx, fasthttp.StatusOK, issuedResponse{
			Token:       issued.Token,
			TokenRecord: viewOf(&issued.Record),
		})
	}
}

func RevokeToken(reg *registry.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		tokenID, _ := ctx.UserValue("id").(string)
		if tokenID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("token id required")
			return
		}

		rec, err := reg.Revoke(ctx, user.TeamID, tokenID)
		if errors.Is(err, registry.ErrNotFound) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("ingestion token not found")
			return
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to revoke ingestion token")
			return
		}
		if tokensRevoked != nil {
			tokensRevoked.Inc()
		}
		writeJSON(ctx, fasthttp.StatusOK, viewOf(rec))
	}
}

// AssignTokenShard is the operator shard override. Operators may address
// any tenant's token; the registry warns on policy violations but never
// refuses them.
func AssignTokenShard(reg *registry.Registry) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString("forbidden")
			return
		}
		tokenID, _ := ctx.UserValue("id").(string)
		var req struct {
			AssignedShard string `json:"assigned_shard"`
		}
		if !readJSON(ctx, &req) {
			return
		}
		if tokenID == "" || req.AssignedShard == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("token id and assigned_shard required")
			return
		}

		rec, err := reg.AssignShard(ctx, tokenID, req.AssignedShard)
		if errors.Is(err, registry.ErrNotFound) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("ingestion token not found")
			return
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to assign shard")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{
			"id":             rec.ID,
			"assigned_shard": rec.AssignedShard,
		})
	}
}
