package middleware

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "hdxplane/internal/db"
	httpctx "hdxplane/internal/http/ctx"
)

// SessionAuth loads the session user from the cookie and sets it on the
// request context. All tenant-scoped handlers sit behind this.
func SessionAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			cookie := ctx.Request.Header.Cookie("session_user")
			if len(cookie) == 0 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}
			email := string(cookie)

			var user dbpkg.User
			if err := db.Where("email = ?", email).First(&user).Error; err != nil {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("unauthorized")
				return
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}
