package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/castmod/castmod/automod/actions"
	"github.com/castmod/castmod/automod/authz"
	"github.com/castmod/castmod/automod/countstore"
	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/automod/registry"

	"github.com/labstack/echo/v4"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	// individual rule configuration problems, for validation failures
	Problems []string `json:"problems,omitempty"`
}

type memberRequestBody struct {
	User engine.Profile `json:"user"`
}

type castEventBody struct {
	User engine.Profile `json:"user"`
	Cast engine.Cast    `json:"cast"`
}

type actionRequestBody struct {
	Action        string          `json:"action"`
	AffectedUser  actions.Subject `json:"affectedUser"`
	CastHash      string          `json:"castHash,omitempty"`
	DurationHours float64         `json:"durationHours,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

type rulesBody struct {
	MemberRules *registry.RuleGroup `json:"memberRules"`
	CastRules   *registry.RuleGroup `json:"castRules"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var errorMessage string
	var problems []string
	var he *echo.HTTPError
	var ve *registry.ValidationError
	switch {
	case errors.As(err, &he):
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	case errors.As(err, &ve):
		code = http.StatusBadRequest
		errorMessage = "invalid rule configuration"
		for _, p := range ve.Problems {
			problems = append(problems, p.Error())
		}
	case errors.Is(err, actions.ErrMissingCastHash), errors.Is(err, actions.ErrUnknownAction):
		code = http.StatusBadRequest
		errorMessage = err.Error()
	case errors.Is(err, actions.ErrUnauthorized):
		code = http.StatusForbidden
		errorMessage = err.Error()
	case errors.Is(err, modstore.ErrNotFound):
		code = http.StatusNotFound
		errorMessage = "channel not found"
	}
	if code >= 500 {
		slog.Warn("castmod-http-internal-error", "err", err, "path", c.Path())
		errorMessage = "internal error"
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "castmod", Message: errorMessage, Problems: problems})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	if srv.rdb != nil {
		if err := srv.rdb.Ping(c.Request().Context()).Err(); err != nil {
			srv.logger.Error("healthcheck can't connect to redis", "err", err)
			return c.JSON(http.StatusServiceUnavailable, GenericStatus{Status: "error", Daemon: "castmod", Message: "can't connect to redis"})
		}
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "castmod"})
}

func (srv *Server) HandleListRules(c echo.Context) error {
	reg := srv.engine.Rules.Registry
	switch kind := registry.Scope(c.QueryParam("checkType")); kind {
	case "":
		return c.JSON(http.StatusOK, map[string]any{"rules": reg.All()})
	case registry.ScopeUser, registry.ScopeCast:
		return c.JSON(http.StatusOK, map[string]any{"rules": reg.ForCheckType(kind)})
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "checkType must be user or cast")
	}
}

func (srv *Server) HandleEvaluateMember(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandleEvaluateMember")
	defer span.End()

	var body memberRequestBody
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.User.Fid <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user fid is required")
	}
	eventsReceived.WithLabelValues("member").Inc()

	dec, err := srv.engine.ProcessMemberRequest(ctx, engine.MemberRequest{
		ChannelID: c.Param("channel"),
		User:      body.User,
	})
	if err != nil {
		return err
	}
	if !dec.Result {
		eventsRejected.WithLabelValues("member").Inc()
	}
	return c.JSON(http.StatusOK, dec)
}

func (srv *Server) HandleEvaluateCast(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandleEvaluateCast")
	defer span.End()

	var body castEventBody
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.User.Fid <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user fid is required")
	}
	eventsReceived.WithLabelValues("cast").Inc()

	dec, err := srv.engine.ProcessCast(ctx, engine.CastEvent{
		ChannelID: c.Param("channel"),
		User:      body.User,
		Cast:      body.Cast,
	})
	if err != nil {
		return err
	}
	if !dec.Result {
		eventsRejected.WithLabelValues("cast").Inc()
	}
	return c.JSON(http.StatusOK, dec)
}

func (srv *Server) HandleAction(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HandleAction")
	defer span.End()

	var body actionRequestBody
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.AffectedUser.Fid <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "affectedUser fid is required")
	}
	if body.DurationHours < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "durationHours must not be negative")
	}

	out, err := srv.engine.Actions.Apply(ctx, actions.ManualAction{
		Action:    body.Action,
		ChannelID: c.Param("channel"),
		ActorFid:  actorFid(c),
		Subject:   body.AffectedUser,
		CastHash:  body.CastHash,
		Duration:  time.Duration(body.DurationHours * float64(time.Hour)),
		Reason:    body.Reason,
	})
	if err != nil {
		manualActions.WithLabelValues(body.Action, "error").Inc()
		return err
	}
	manualActions.WithLabelValues(body.Action, "ok").Inc()
	return c.JSON(http.StatusOK, out)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}

// resolves the channel and confirms the actor moderates it
func (srv *Server) requireModerator(c echo.Context) (authz.Result, error) {
	channelID := c.Param("channel")
	res, err := srv.authz.CanUserModerateChannel(c.Request().Context(), actorFid(c), channelID)
	if err != nil {
		return res, err
	}
	if res.Channel == nil {
		return res, fmt.Errorf("channel %s: %w", channelID, modstore.ErrNotFound)
	}
	if !res.Allowed {
		return res, actions.ErrUnauthorized
	}
	return res, nil
}

func (srv *Server) HandleListLogs(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := srv.requireModerator(c); err != nil {
		return err
	}

	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	pageSize, err := queryInt(c, "pageSize")
	if err != nil {
		return err
	}
	if pageSize < 0 || pageSize > modstore.MaxPageSize {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("pageSize must be between 0 and %d", modstore.MaxPageSize))
	}
	var loc *time.Location
	if tz := c.QueryParam("tz"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown time zone")
		}
	}

	out, err := srv.store.ListLogs(ctx, c.Param("channel"), page, pageSize)
	if err != nil {
		return err
	}
	actions.LocalizeLogs(out.Logs, loc)
	return c.JSON(http.StatusOK, out)
}

func encodeRules(g *registry.RuleGroup) (string, error) {
	if g == nil {
		return "", nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Replaces both of the channel's rule groups; an absent group clears that configuration. Only the channel lead may change rules.
func (srv *Server) HandlePutRules(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := srv.requireModerator(c)
	if err != nil {
		return err
	}
	if res.Role != authz.RoleLead {
		return fmt.Errorf("%w: only the channel lead may change rules", actions.ErrUnauthorized)
	}

	var body rulesBody
	if err := c.Bind(&body); err != nil {
		return err
	}

	var problems []error
	for _, v := range []struct {
		group *registry.RuleGroup
		kind  registry.Scope
	}{
		{body.MemberRules, registry.ScopeUser},
		{body.CastRules, registry.ScopeCast},
	} {
		var ve *registry.ValidationError
		if err := srv.engine.ValidateRules(v.group, v.kind); errors.As(err, &ve) {
			problems = append(problems, ve.Problems...)
		} else if err != nil {
			return err
		}
	}
	if len(problems) > 0 {
		return &registry.ValidationError{Problems: problems}
	}

	memberRules, err := encodeRules(body.MemberRules)
	if err != nil {
		return err
	}
	castRules, err := encodeRules(body.CastRules)
	if err != nil {
		return err
	}
	if err := srv.store.UpdateChannelRules(ctx, res.Channel.ID, memberRules, castRules); err != nil {
		return err
	}
	srv.logger.Info("updated channel rules", "channel", res.Channel.ID, "actor", actorFid(c),
		"memberRules", len(body.MemberRules.Rules()), "castRules", len(body.CastRules.Rules()))
	return c.JSON(http.StatusOK, body)
}

func (srv *Server) HandleChannelStats(c echo.Context) error {
	if _, err := srv.requireModerator(c); err != nil {
		return err
	}
	period := c.QueryParam("period")
	if period == "" {
		period = countstore.PeriodDay
	}
	if !countstore.ValidPeriod(period) {
		return echo.NewHTTPError(http.StatusBadRequest, "period must be one of: hour, day, total")
	}
	stats, err := srv.engine.ChannelStats(c.Request().Context(), c.Param("channel"), period)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// Removes the channel's configuration, moderators, and moderation history. Only the channel lead may delete it.
func (srv *Server) HandleDeleteChannel(c echo.Context) error {
	res, err := srv.requireModerator(c)
	if err != nil {
		return err
	}
	if res.Role != authz.RoleLead {
		return fmt.Errorf("%w: only the channel lead may delete the channel", actions.ErrUnauthorized)
	}
	if err := srv.store.DeleteChannel(c.Request().Context(), res.Channel.ID); err != nil {
		return err
	}
	srv.logger.Info("deleted channel", "channel", res.Channel.ID, "actor", actorFid(c))
	return c.NoContent(http.StatusNoContent)
}
