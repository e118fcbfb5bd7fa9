package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bluesky-social/nestedset/nestedset"
	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
)

type HealthStatus struct {
	Status      string  `json:"status"`
	Version     string  `json:"version"`
	Message     string  `json:"msg,omitempty"`
	CacheHits   *uint64 `json:"cacheHits,omitempty"`
	CacheMisses *uint64 `json:"cacheMisses,omitempty"`
}

func (s *Server) handleHealthcheck(c echo.Context) error {
	st := HealthStatus{
		Status:  "ok",
		Version: versioninfo.Short(),
	}
	if c.QueryParam("stats") == "true" {
		hits, misses := nestedset.CacheStats()
		st.CacheHits = &hits
		st.CacheMisses = &misses
	}
	return c.JSON(http.StatusOK, st)
}

func nodeID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid node id %q", c.Param("id")))
	}
	return id, nil
}

func (s *Server) handleGetTree(c echo.Context) error {
	nodes, err := s.tree.GetTree(c.Request().Context())
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusOK, nodes)
}

func (s *Server) handleGetNode(c echo.Context) error {
	id, err := nodeID(c)
	if err != nil {
		return err
	}
	n, err := s.tree.GetNode(c.Request().Context(), id)
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) handleGetSubtree(c echo.Context) error {
	id, err := nodeID(c)
	if err != nil {
		return err
	}
	nodes, err := s.tree.GetSubtree(c.Request().Context(), id, c.QueryParam("self") == "true")
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusOK, nodes)
}

// handleGetChildren lists the roots for id 0.
func (s *Server) handleGetChildren(c echo.Context) error {
	id, err := nodeID(c)
	if err != nil {
		return err
	}
	nodes, err := s.tree.GetChildren(c.Request().Context(), id)
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusOK, nodes)
}

func (s *Server) handleGetAncestors(c echo.Context) error {
	id, err := nodeID(c)
	if err != nil {
		return err
	}
	nodes, err := s.tree.GetAncestors(c.Request().Context(), id, c.QueryParam("self") == "true")
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusOK, nodes)
}

type InsertRequest struct {
	Parent   int64          `json:"parent"`
	Position string         `json:"position,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

func (s *Server) handleInsert(c echo.Context) error {
	var req InsertRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	pos := nestedset.Bottom
	if req.Position != "" {
		pos = nestedset.Position(req.Position)
	}

	n, err := s.tree.Insert(c.Request().Context(), req.Parent, req.Attrs, pos)
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (s *Server) handleDelete(c echo.Context) error {
	id, err := nodeID(c)
	if err != nil {
		return err
	}
	if err := s.tree.Delete(c.Request().Context(), id); err != nil {
		return s.treeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MoveRequest names exactly one of Under (a new parent, 0 for the root
// level) or Near (a sibling to land next to).
type MoveRequest struct {
	Under    *int64 `json:"under,omitempty"`
	Near     *int64 `json:"near,omitempty"`
	Position string `json:"position,omitempty"`
}

func (s *Server) handleMove(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := nodeID(c)
	if err != nil {
		return err
	}
	var req MoveRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	switch {
	case req.Under != nil && req.Near == nil:
		pos := nestedset.Bottom
		if req.Position != "" {
			pos = nestedset.Position(req.Position)
		}
		err = s.tree.MoveUnder(ctx, id, *req.Under, pos)
	case req.Near != nil && req.Under == nil:
		pos := nestedset.After
		if req.Position != "" {
			pos = nestedset.NearPosition(req.Position)
		}
		err = s.tree.MoveNear(ctx, id, *req.Near, pos)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of under or near is required")
	}
	if err != nil {
		return s.treeError(err)
	}

	n, err := s.tree.GetNode(ctx, id)
	if err != nil {
		return s.treeError(err)
	}
	return c.JSON(http.StatusOK, n)
}
