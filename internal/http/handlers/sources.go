package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "hdxplane/internal/db"
)

type sourceView struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"`
	ConnectionID    string         `json:"connection_id"`
	Database        string         `json:"database"`
	Table           string         `json:"table,omitempty"`
	MetricTables    map[string]any `json:"metric_tables,omitempty"`
	LogSourceID     string         `json:"log_source_id,omitempty"`
	TraceSourceID   string         `json:"trace_source_id,omitempty"`
	MetricSourceID  string         `json:"metric_source_id,omitempty"`
	SessionSourceID string         `json:"session_source_id,omitempty"`
}

func sourceViewOf(s *dbpkg.Source) sourceView {
	return sourceView{
		ID:              s.ID,
		Kind:            s.Kind,
		ConnectionID:    s.ConnectionID,
		Database:        s.Database,
		Table:           s.Table,
		MetricTables:    s.MetricTables,
		LogSourceID:     s.LogSourceID,
		TraceSourceID:   s.TraceSourceID,
		MetricSourceID:  s.MetricSourceID,
		SessionSourceID: s.SessionSourceID,
	}
}

func ListSources(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		var sources []dbpkg.Source
		if err := db.Where("team_id = ?", user.TeamID).Order("kind ASC").Find(&sources).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to list sources")
			return
		}
		views := make([]sourceView, 0, len(sources))
		for i := range sources {
			views = append(views, sourceViewOf(&sources[i]))
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"data": views})
	}
}

func GetSource(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		id, _ := ctx.UserValue("id").(string)

		var src dbpkg.Source
		err := db.Where("id = ? AND team_id = ?", id, user.TeamID).First(&src).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("source not found")
			return
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, sourceViewOf(&src))
	}
}

// DeleteSource removes a source of the caller's team. The delete is
// predicated on team_id, so addressing another team's source deletes
// nothing and still answers 200 rather than leaking existence.
func DeleteSource(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		id, _ := ctx.UserValue("id").(string)
		if id == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("source id required")
			return
		}

		if err := db.Where("id = ? AND team_id = ?", id, user.TeamID).Delete(&dbpkg.Source{}).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to delete source")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	}
}
